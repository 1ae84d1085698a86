package domain

import "time"

// StepName identifies a step of the transfer pipeline.
type StepName string

const (
	StepFetch   StepName = "fetch"
	StepDeliver StepName = "deliver"
)

// Steps lists the pipeline in execution order.
var Steps = []StepName{StepFetch, StepDeliver}

// Failure is the serialisable detail of a failed step.
type Failure struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
}

// FailureFrom converts a step error into its durable form.
func FailureFrom(err error) *Failure {
	return &Failure{Kind: KindOf(err), Detail: err.Error()}
}

func (f *Failure) Error() string {
	return f.Detail
}

// StepResult is either Success(Payload) or Failure(Err).
type StepResult struct {
	Payload []byte   `json:"payload,omitempty"`
	Err     *Failure `json:"error,omitempty"`
}

// Success builds a successful result.
func Success(payload []byte) StepResult {
	return StepResult{Payload: payload}
}

// Failed builds a failed result from a step error.
func Failed(err error) StepResult {
	return StepResult{Err: FailureFrom(err)}
}

// OK reports whether the result is a success.
func (r StepResult) OK() bool {
	return r.Err == nil
}

// DeliveryReceipt describes a completed remote write.
type DeliveryReceipt struct {
	Path        string    `json:"path"`
	Bytes       int64     `json:"bytes"`
	SHA256      string    `json:"sha256"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// StepRecord is the outcome of one step as kept in the instance history.
type StepRecord struct {
	Step        StepName         `json:"step"`
	Attempts    int              `json:"attempts"`
	Result      StepResult       `json:"result"`
	Receipt     *DeliveryReceipt `json:"receipt,omitempty"`
	CompletedAt time.Time        `json:"completed_at"`
}

func (r StepRecord) clone() StepRecord {
	out := r
	if r.Result.Payload != nil {
		out.Result.Payload = append([]byte(nil), r.Result.Payload...)
	}
	if r.Result.Err != nil {
		f := *r.Result.Err
		out.Result.Err = &f
	}
	if r.Receipt != nil {
		rc := *r.Receipt
		out.Receipt = &rc
	}
	return out
}
