package driver

import (
  "fmt"
  "strconv"
)

// Status is the connection level state reported to the session observer.
type Status uint8

const (
  StatusRetrieveScaleData Status = iota
  StatusInitProcess
  StatusConnectionRetrying
  StatusConnectionEstablished
  StatusConnectionDisconnect
  StatusConnectionLost
  StatusNoDeviceFound
  StatusUnexpectedError
  StatusScaleMessage
  StatusUserInteractionRequired
)

var statusNames = []string{
  "RetrieveScaleData",
  "InitProcess",
  "ConnectionRetrying",
  "ConnectionEstablished",
  "ConnectionDisconnect",
  "ConnectionLost",
  "NoDeviceFound",
  "UnexpectedError",
  "ScaleMessage",
  "UserInteractionRequired",
}

func (s Status) String() string {
  if int(s) < len(statusNames) {
    return statusNames[s]
  }

  return "Status(" + strconv.Itoa(int(s)) + ")"
}

// Message is a user facing notice raised by a driver.
type Message uint8

const (
  MessageScaleOffline Message = iota + 1
  MessageLowBattery
  MessageStepOnScale
  MessageStepOnScaleForReference
  MessageMeasuring
  MessageMaxScaleUsers
  MessageScaleError
)

func (m Message) String() string {
  switch m {
  case MessageScaleOffline:
    return "scale offline"
  case MessageLowBattery:
    return "low battery"
  case MessageStepOnScale:
    return "step on scale"
  case MessageStepOnScaleForReference:
    return "step on scale for reference measurement"
  case MessageMeasuring:
    return "measuring"
  case MessageMaxScaleUsers:
    return "max scale users reached"
  case MessageScaleError:
    return "scale error"
  default:
    return "message(" + strconv.Itoa(int(m)) + ")"
  }
}

type InteractionKind uint8

const (
  InteractionChooseScaleUser InteractionKind = iota + 1
  InteractionEnterConsent
)

func (k InteractionKind) String() string {
  switch k {
  case InteractionChooseScaleUser:
    return "choose scale user"
  case InteractionEnterConsent:
    return "enter consent code"
  default:
    return "interaction(" + strconv.Itoa(int(k)) + ")"
  }
}

// ScaleUserChoice is one slot offered when asking which scale user an app user is.
// Index -1 stands for "register a new scale user".
type ScaleUserChoice struct {
  Index int
  Label string
}

// Interaction asks the owner of the session for input the driver cannot get on its own.
// It is answered through the Responder implemented by the driver.
type Interaction struct {
  Kind InteractionKind
  UserID int
  ScaleIndex int
  Choices []ScaleUserChoice
}

// Responder answers interactions. Answers may require a new connection, reported as
// ErrReconnectRequired.
type Responder interface {
  SelectScaleUserIndex(appUserID, scaleIndex int) error
  SetScaleUserConsent(appUserID, consent int) error
}

// Event is what a session reports to its observer.
type Event struct {
  Status Status
  Message Message
  Value any
  Detail string
  Interaction *Interaction
}

func (e Event) String() string {
  switch e.Status {
  case StatusScaleMessage:
    return fmt.Sprintf("event[%v: %v (%v)]", e.Status, e.Message, e.Value)
  case StatusUserInteractionRequired:
    return fmt.Sprintf("event[%v: %v]", e.Status, e.Interaction.Kind)
  default:
    if e.Detail != "" {
      return fmt.Sprintf("event[%v: %s]", e.Status, e.Detail)
    }

    return fmt.Sprintf("event[%v]", e.Status)
  }
}

type Observer func(Event)
