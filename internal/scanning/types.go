package scanning

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/portstrom/internal/errors"
)

const (
	// Unknown is the placeholder for service fields nmap did not report.
	Unknown = "Unknown"

	minPort = 1
	maxPort = 65535
)

// WebPorts are the ports handed to the web probe, in probe order.
var WebPorts = []int{80, 443}

// IsWebPort reports whether port is one of WebPorts.
func IsWebPort(port int) bool {
	for _, p := range WebPorts {
		if p == port {
			return true
		}
	}
	return false
}

// Stage names one step of the scan pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StagePortScan    Stage = "port-scan"
	StageFingerprint Stage = "fingerprint"
	StageWebProbe    Stage = "web-probe"
)

// Stages lists every pipeline stage in execution order.
var Stages = []Stage{StagePortScan, StageFingerprint, StageWebProbe}

// State is the coarse result of a stage.
type State string

// Stage states.
const (
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

// Outcome refines State with the reason a stage ended the way it did.
type Outcome string

// Stage outcomes.
const (
	// OutcomeCompleted means the tool ran cleanly and produced findings.
	OutcomeCompleted Outcome = "completed"
	// OutcomeEmpty means the tool ran cleanly and found nothing.
	OutcomeEmpty Outcome = "empty"
	// OutcomeSkipped means there was nothing to hand the tool.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeToolAbsent means the binary could not be located.
	OutcomeToolAbsent Outcome = "tool_absent"
	// OutcomeToolError means the tool exited nonzero or could not be started.
	OutcomeToolError Outcome = "tool_error"
	// OutcomeTimeout means the configured tool timeout elapsed.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeCanceled means the run was interrupted.
	OutcomeCanceled Outcome = "canceled"
	// OutcomeUnresolved means the target hostname had no usable address.
	OutcomeUnresolved Outcome = "unresolved"
)

// StageStatus records how one stage ended.
type StageStatus struct {
	State    State    `json:"state"`
	Outcome  Outcome  `json:"outcome"`
	Message  string   `json:"message,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Succeeded builds a success status. Empty warnings are stored as nil.
func Succeeded(outcome Outcome, warnings []string) StageStatus {
	if len(warnings) == 0 {
		warnings = nil
	}
	return StageStatus{State: StateSuccess, Outcome: outcome, Warnings: warnings}
}

// Failed builds a failure status.
func Failed(outcome Outcome, message string) StageStatus {
	return StageStatus{State: StateFailed, Outcome: outcome, Message: message}
}

// FailedFromError maps a tool invocation error onto a failure status.
func FailedFromError(err error) StageStatus {
	outcome := OutcomeToolError
	switch errors.GetCode(err) {
	case errors.CodeToolNotFound:
		outcome = OutcomeToolAbsent
	case errors.CodeTimeout:
		outcome = OutcomeTimeout
	case errors.CodeCanceled:
		outcome = OutcomeCanceled
	}

	message := ""
	if err != nil {
		message = err.Error()
	}
	var toolErr *errors.ToolError
	if stderrors.As(err, &toolErr) && toolErr.Stderr != "" {
		message = toolErr.Stderr
	}
	return Failed(outcome, message)
}

// OK reports whether the stage succeeded.
func (s StageStatus) OK() bool {
	return s.State == StateSuccess
}

// ScanTarget is the validated input for a run.
type ScanTarget struct {
	Address string `json:"address" validate:"required"`
	Rate    int    `json:"rate" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewScanTarget validates address and rate.
func NewScanTarget(address string, rate int) (ScanTarget, error) {
	t := ScanTarget{Address: address, Rate: rate}
	if err := validate.Struct(t); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return ScanTarget{}, errors.NewConfigFieldError(errors.CodeValidation,
				fmt.Sprintf("failed %q validation", fe.Tag()), fe.Field(), fe.Value())
		}
		return ScanTarget{}, errors.WrapConfigError(errors.CodeValidation, "invalid scan target", err)
	}
	return t, nil
}

// PortSet is a set of open ports that remembers discovery order.
// The zero value is ready to use.
type PortSet struct {
	order []int
	seen  map[int]struct{}
}

// NewPortSet returns a set holding ports, in order, without duplicates.
func NewPortSet(ports ...int) *PortSet {
	s := &PortSet{}
	for _, p := range ports {
		s.Add(p)
	}
	return s
}

// Add inserts port. It returns false for duplicates and ports outside 1-65535.
func (s *PortSet) Add(port int) bool {
	if port < minPort || port > maxPort {
		return false
	}
	if s.seen == nil {
		s.seen = make(map[int]struct{})
	}
	if _, ok := s.seen[port]; ok {
		return false
	}
	s.seen[port] = struct{}{}
	s.order = append(s.order, port)
	return true
}

// Contains reports whether port is in the set.
func (s *PortSet) Contains(port int) bool {
	if s == nil {
		return false
	}
	_, ok := s.seen[port]
	return ok
}

// Ports returns a copy of the ports in discovery order.
func (s *PortSet) Ports() []int {
	if s == nil {
		return []int{}
	}
	out := make([]int, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of ports.
func (s *PortSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// MarshalJSON encodes the set as an array in discovery order.
func (s *PortSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Ports())
}

// UnmarshalJSON decodes an array, dropping duplicates and invalid ports.
func (s *PortSet) UnmarshalJSON(data []byte) error {
	var ports []int
	if err := json.Unmarshal(data, &ports); err != nil {
		return err
	}
	*s = PortSet{}
	for _, p := range ports {
		s.Add(p)
	}
	return nil
}

// ServiceRecord is what the fingerprinter learned about one port.
type ServiceRecord struct {
	Port    int    `json:"port"`
	Service string `json:"service"`
	Version string `json:"version"`
	OS      string `json:"os"`
}

// NewServiceRecord returns a record for port with every field Unknown.
func NewServiceRecord(port int) ServiceRecord {
	return ServiceRecord{Port: port, Service: Unknown, Version: Unknown, OS: Unknown}
}

// WebFinding holds the web probe output for a single web port.
type WebFinding struct {
	Port        int      `json:"port"`
	Subdomains  []string `json:"subdomains"`
	Directories []string `json:"directories"`
}

// NewWebFinding returns an empty finding for port.
func NewWebFinding(port int) WebFinding {
	return WebFinding{Port: port, Subdomains: []string{}, Directories: []string{}}
}
