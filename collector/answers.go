package collector

import (
  "errors"
  "sync"
  "sync/atomic"

  "github.com/rs/zerolog/log"
  "golang.org/x/exp/slices"

  "github.com/robertof/go-scale-bridge/driver"
)

type question struct {
  kind driver.InteractionKind
  userID int
}

// answerer replies to the interactions raised during one session. Each question is answered
// once, so a refused consent code is not sent again in a loop.
type answerer struct {
  answers Answers

  // only touched from the session observer.
  asked map[question]bool

  wg sync.WaitGroup
  reconnect atomic.Bool
}

func newAnswerer(answers Answers) *answerer {
  return &answerer{
    answers: answers,
    asked: make(map[question]bool),
  }
}

func hasChoice(choices []driver.ScaleUserChoice, index int) bool {
  return slices.IndexFunc(choices, func(c driver.ScaleUserChoice) bool {
    return c.Index == index
  }) >= 0
}

func (a *answerer) reply(i driver.Interaction) func(driver.Responder) error {
  switch i.Kind {
  case driver.InteractionChooseScaleUser:
    index, ok := a.answers.ScaleUserIndex[i.UserID]

    if !ok || !hasChoice(i.Choices, index) {
      if !a.answers.RegisterNewUsers || !hasChoice(i.Choices, -1) {
        return nil
      }

      index = -1
    }

    return func(r driver.Responder) error {
      return r.SelectScaleUserIndex(i.UserID, index)
    }
  case driver.InteractionEnterConsent:
    code, ok := a.answers.ConsentCode[i.UserID]
    if !ok {
      return nil
    }

    return func(r driver.Responder) error {
      return r.SetScaleUserConsent(i.UserID, code)
    }
  }

  return nil
}

// answer must not block: it is called from the session observer, and Answer waits for the
// session goroutine.
func (a *answerer) answer(s *driver.Session, i driver.Interaction) {
  q := question{i.Kind, i.UserID}

  if a.asked[q] {
    log.Warn().
      Stringer("Interaction", i.Kind).
      Int("UserID", i.UserID).
      Msg("collector: interaction asked again, not answering twice")
    return
  }

  a.asked[q] = true

  fn := a.reply(i)
  if fn == nil {
    log.Warn().
      Stringer("Interaction", i.Kind).
      Int("UserID", i.UserID).
      Msg("collector: no answer configured for interaction")
    return
  }

  a.wg.Add(1)

  go func() {
    defer a.wg.Done()

    err := s.Answer(fn)

    switch {
    case errors.Is(err, driver.ErrReconnectRequired):
      a.reconnect.Store(true)
    case err != nil:
      log.Error().Err(err).Stringer("Interaction", i.Kind).Msg("collector: failed to answer interaction")
    }
  }()
}

// wait returns once every answer is delivered and reports whether one asked for a new
// connection.
func (a *answerer) wait() bool {
  a.wg.Wait()

  return a.reconnect.Load()
}
