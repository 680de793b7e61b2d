package standard

import (
  "github.com/go-ble/ble"
)

var (
  ServiceDeviceInformation = ble.UUID16(0x180a)
  ServiceBattery = ble.UUID16(0x180f)
  ServiceCurrentTime = ble.UUID16(0x1805)
  ServiceWeightScale = ble.UUID16(0x181d)
  ServiceBodyComposition = ble.UUID16(0x181b)
  ServiceUserData = ble.UUID16(0x181c)

  CharManufacturerName = ble.UUID16(0x2a29)
  CharModelNumber = ble.UUID16(0x2a24)
  CharBatteryLevel = ble.UUID16(0x2a19)
  CharCurrentTime = ble.UUID16(0x2a2b)
  CharWeightMeasurement = ble.UUID16(0x2a9d)
  CharBodyCompositionMeasurement = ble.UUID16(0x2a9c)
  CharChangeIncrement = ble.UUID16(0x2a99)
  CharUserControlPoint = ble.UUID16(0x2a9f)
  CharDateOfBirth = ble.UUID16(0x2a85)
  CharGender = ble.UUID16(0x2a8c)
  CharHeight = ble.UUID16(0x2a8e)
)

// User control point op codes.
const (
  ucpRegisterNewUser byte = 0x01
  ucpConsent byte = 0x02
  ucpDeleteUserData byte = 0x03
  ucpListAllUsers byte = 0x04
  ucpDeleteUsers byte = 0x05
  ucpResponse byte = 0x20
)

// User control point response values.
const (
  ucpSuccess byte = 0x01
  ucpOpCodeNotSupported byte = 0x02
  ucpInvalidParameter byte = 0x03
  ucpOperationFailed byte = 0x04
  ucpUserNotAuthorized byte = 0x05
)

func ucpResultString(v byte) string {
  switch v {
  case ucpSuccess:
    return "success"
  case ucpOpCodeNotSupported:
    return "op code not supported"
  case ucpInvalidParameter:
    return "invalid parameter"
  case ucpOperationFailed:
    return "operation failed"
  case ucpUserNotAuthorized:
    return "user not authorized"
  default:
    return "unknown"
  }
}
