// Package swcerr is the error taxonomy of spec §7, shared by every
// internal component and the public swc package. Centralizing it here
// (rather than in the root package) lets internal/* components return
// the exact same Error type the application sees, without an import
// cycle back to the root package.
package swcerr

import "fmt"

// Code is a behavioral error category, not a type name — see spec §7.
// It is string-backed so it prints usefully in logs and round-trips
// through %v without a lookup table.
type Code string

const (
	// Input validation — raised only while stopped, never during I/O.
	NullPtr                Code = "null_ptr"
	InvalidParameter       Code = "invalid_parameter"
	PanId                  Code = "pan_id"
	LocalAddress           Code = "local_address"
	SourceAddress          Code = "source_address"
	DestinationAddress     Code = "destination_address"
	NetworkRole            Code = "network_role"
	SleepLevel             Code = "sleep_level"
	IrqPolarity            Code = "irq_polarity"
	SpiMode                Code = "spi_mode"
	Modulation             Code = "modulation"
	FecRatio               Code = "fec_ratio"
	CcaFailAction          Code = "cca_fail_action"
	ChipRate               Code = "chip_rate"
	TxPulseCount           Code = "tx_pulse_count"
	TxPulseWidth           Code = "tx_pulse_width"
	TxPulseGain            Code = "tx_pulse_gain"
	RxPulseCount           Code = "rx_pulse_count"
	PayloadTooBig          Code = "payload_too_big"
	ZeroTimeslotSeqLen     Code = "zero_timeslot_seq_len"
	ZeroChanSeqLen         Code = "zero_chan_seq_len"
	MinQueueSize           Code = "min_queue_size"
	ZeroTimeslotCount      Code = "zero_timeslot_count"
	NullTimeslotDuration   Code = "null_timeslot_duration"
	MaxConnPriority        Code = "max_conn_priority"
	InvalidPulseConfig27M  Code = "invalid_pulse_config_27m"

	// State misuse.
	ChangingConfigWhileRunning Code = "changing_config_while_running"
	NotInitialized             Code = "not_initialized"
	AlreadyConnected           Code = "already_connected"
	NotConnected               Code = "not_connected"
	InvalidOperationAfterSetup Code = "invalid_operation_after_setup"
	SendOnRxConn               Code = "send_on_rx_conn"

	// Resource exhaustion.
	NotEnoughMemory          Code = "not_enough_memory"
	NoBufferAvailable        Code = "no_buffer_available"
	NoChannelInit            Code = "no_channel_init"
	TimeslotConnLimitReached Code = "timeslot_conn_limit_reached"
	SecondRadioNotInit       Code = "second_radio_not_init"
	CalibrationMissing       Code = "calibration_missing"
	RadioNotFound            Code = "radio_not_found"

	// Operational.
	SendQueueFull        Code = "send_queue_full"
	SizeTooBig           Code = "size_too_big"
	ReceiveQueueEmpty    Code = "receive_queue_empty"
	BufferSizeTooSmall   Code = "buffer_size_too_small"
	RxOverrun            Code = "rx_overrun"
	CcaInvalidParameters Code = "cca_invalid_parameters"
	DisconnectTimeout    Code = "disconnect_timeout"

	// Policy conflicts.
	ArqWithAckDisabled                  Code = "arq_with_ack_disabled"
	CreditFlowCtrlWithAckDisabled       Code = "credit_flow_ctrl_with_ack_disabled"
	NonMatchingSameTimeslotConnField    Code = "non_matching_same_timeslot_conn_field"
	PrioNotEnableOnAllConn              Code = "prio_not_enable_on_all_conn"
	NotAllowedConnPriorityConfiguration Code = "not_allowed_conn_priority_configuration"
	AckNotSupportedInAutoReplyConnection Code = "ack_not_supported_in_auto_reply_connection"
	AddChannelOnInvalidConnection       Code = "add_channel_on_invalid_connection"
	IncorrectTsSleepLevel               Code = "incorrect_ts_sleep_level"
	FastSyncWithDualRadio               Code = "fast_sync_with_dual_radio"
	FragmentationNotSupported           Code = "fragmentation_not_supported"
	ThrottlingNotSupported              Code = "throttling_not_supported"
	NoPayloadMemAllocOnRxConnection     Code = "no_payload_mem_alloc_on_rx_connection"
	ThrottlingOnRxConnection            Code = "throttling_on_rx_connection"
	OptimizationDelayTooHigh            Code = "optimization_delay_too_high"

	// Internal — reserved for provably-unreachable paths.
	Internal Code = "internal"

	// Pairing-specific (§4.12), not part of the base §7 taxonomy but
	// following the same Code shape.
	InvalidAppCode Code = "invalid_app_code"
	Timeout        Code = "timeout"
	WirelessError  Code = "wireless_error"
)

// Error is the single error type carrying a Code plus an optional
// wrapped cause, implementing Go's errors.Is/errors.As conventions per
// SPEC_FULL.md's ambient-stack error handling section.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, swcerr.New(code, "")) match by Code alone,
// which is how call sites are expected to branch on error category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel compares true under errors.Is for any *Error with the same
// Code, regardless of Message/Cause.
func Sentinel(code Code) error { return &Error{Code: code} }
