package swc

import "github.com/uwbstack/swc/internal/swcerr"

// Error is the public error type every fallible call returns: a
// behavioral category (Code) plus an optional human message and wrapped
// cause (§7, §9 "Result<T, Error>"). It is a type alias for
// internal/swcerr's type so the same value can flow from internal/*
// straight out of the public API without a conversion step.
type Error = swcerr.Error

// ErrorCode is a behavioral error category, not a type name (§7).
type ErrorCode = swcerr.Code

// Error codes, grouped the way §7 groups them.
const (
	// Input validation — raised only while stopped, never during I/O.
	ErrNullPtr               = swcerr.NullPtr
	ErrInvalidParameter      = swcerr.InvalidParameter
	ErrPanID                 = swcerr.PanId
	ErrLocalAddress          = swcerr.LocalAddress
	ErrSourceAddress         = swcerr.SourceAddress
	ErrDestinationAddress    = swcerr.DestinationAddress
	ErrNetworkRole           = swcerr.NetworkRole
	ErrSleepLevel            = swcerr.SleepLevel
	ErrIrqPolarity           = swcerr.IrqPolarity
	ErrSpiMode               = swcerr.SpiMode
	ErrModulation            = swcerr.Modulation
	ErrFecRatio              = swcerr.FecRatio
	ErrCCAFailAction         = swcerr.CcaFailAction
	ErrChipRate              = swcerr.ChipRate
	ErrTxPulseCount          = swcerr.TxPulseCount
	ErrTxPulseWidth          = swcerr.TxPulseWidth
	ErrTxPulseGain           = swcerr.TxPulseGain
	ErrRxPulseCount          = swcerr.RxPulseCount
	ErrPayloadTooBig         = swcerr.PayloadTooBig
	ErrZeroTimeslotSeqLen    = swcerr.ZeroTimeslotSeqLen
	ErrZeroChanSeqLen        = swcerr.ZeroChanSeqLen
	ErrMinQueueSize          = swcerr.MinQueueSize
	ErrZeroTimeslotCount     = swcerr.ZeroTimeslotCount
	ErrNullTimeslotDuration  = swcerr.NullTimeslotDuration
	ErrMaxConnPriority       = swcerr.MaxConnPriority
	ErrInvalidPulseConfig27M = swcerr.InvalidPulseConfig27M

	// State misuse.
	ErrChangingConfigWhileRunning = swcerr.ChangingConfigWhileRunning
	ErrNotInitialized             = swcerr.NotInitialized
	ErrAlreadyConnected           = swcerr.AlreadyConnected
	ErrNotConnected               = swcerr.NotConnected
	ErrInvalidOperationAfterSetup = swcerr.InvalidOperationAfterSetup
	ErrSendOnRxConn               = swcerr.SendOnRxConn

	// Resource exhaustion.
	ErrNotEnoughMemory          = swcerr.NotEnoughMemory
	ErrNoBufferAvailable        = swcerr.NoBufferAvailable
	ErrNoChannelInit            = swcerr.NoChannelInit
	ErrTimeslotConnLimitReached = swcerr.TimeslotConnLimitReached
	ErrSecondRadioNotInit       = swcerr.SecondRadioNotInit
	ErrCalibrationMissing       = swcerr.CalibrationMissing
	ErrRadioNotFound            = swcerr.RadioNotFound

	// Operational.
	ErrSendQueueFull        = swcerr.SendQueueFull
	ErrSizeTooBig           = swcerr.SizeTooBig
	ErrReceiveQueueEmpty    = swcerr.ReceiveQueueEmpty
	ErrBufferSizeTooSmall   = swcerr.BufferSizeTooSmall
	ErrRxOverrun            = swcerr.RxOverrun
	ErrCCAInvalidParameters = swcerr.CcaInvalidParameters
	ErrDisconnectTimeout    = swcerr.DisconnectTimeout

	// Policy conflicts.
	ErrArqWithAckDisabled                  = swcerr.ArqWithAckDisabled
	ErrCreditFlowCtrlWithAckDisabled       = swcerr.CreditFlowCtrlWithAckDisabled
	ErrNonMatchingSameTimeslotConnField    = swcerr.NonMatchingSameTimeslotConnField
	ErrPrioNotEnableOnAllConn              = swcerr.PrioNotEnableOnAllConn
	ErrNotAllowedConnPriorityConfiguration = swcerr.NotAllowedConnPriorityConfiguration
	ErrAckNotSupportedInAutoReplyConnection = swcerr.AckNotSupportedInAutoReplyConnection
	ErrAddChannelOnInvalidConnection       = swcerr.AddChannelOnInvalidConnection
	ErrIncorrectTsSleepLevel               = swcerr.IncorrectTsSleepLevel
	ErrFastSyncWithDualRadio               = swcerr.FastSyncWithDualRadio
	ErrFragmentationNotSupported           = swcerr.FragmentationNotSupported
	ErrThrottlingNotSupported              = swcerr.ThrottlingNotSupported
	ErrNoPayloadMemAllocOnRxConnection     = swcerr.NoPayloadMemAllocOnRxConnection
	ErrThrottlingOnRxConnection            = swcerr.ThrottlingOnRxConnection
	ErrOptimizationDelayTooHigh            = swcerr.OptimizationDelayTooHigh

	// Internal — reserved for provably-unreachable paths.
	ErrInternal = swcerr.Internal

	// Pairing-specific (§4.12).
	ErrInvalidAppCode = swcerr.InvalidAppCode
	ErrTimeout        = swcerr.Timeout
	ErrWirelessError  = swcerr.WirelessError
)

func newErr(code ErrorCode, message string) error { return swcerr.New(code, message) }

func wrapErr(code ErrorCode, message string, cause error) error {
	return swcerr.Wrap(code, message, cause)
}
