package federation

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mikkihugo/agentrouter/agent/discovery"
	"github.com/mikkihugo/agentrouter/types"
)

const (
	// fullConfidenceSamples is the sample size at which a remote rate is
	// fully trusted on the sample axis.
	fullConfidenceSamples = 50.0

	// recencyHorizon is the age at which a remote sample stops contributing.
	recencyHorizon = 168 * time.Hour

	// unknownRecency is used when updated_at is missing or unparsable.
	unknownRecency = 0.5

	sampleWeight  = 0.6
	recencyWeight = 0.4

	localWeight  = 0.7
	remoteWeight = 0.3
)

// CrossInstanceSample is one agent's capability as seen by a peer instance.
type CrossInstanceSample struct {
	InstanceID      string         `json:"instance_id"`
	AgentName       string         `json:"agent_name"`
	Domains         []types.Domain `json:"domains,omitempty"`
	SuccessRate     float64        `json:"success_rate"`
	SampleSize      int            `json:"sample_size"`
	ComplexityLevel string         `json:"complexity_level,omitempty"`
	Availability    float64        `json:"availability"`
	UpdatedAt       string         `json:"updated_at,omitempty"`
}

// Envelope is the unit published on the transport.
type Envelope struct {
	InstanceID   string                `json:"instance_id"`
	Timestamp    string                `json:"timestamp"`
	Capabilities []CrossInstanceSample `json:"capabilities"`
}

// NewEnvelope snapshots capabilities into an envelope. sampleSize may be nil,
// in which case every sample reports zero executions.
func NewEnvelope(instanceID string, now time.Time, caps []*discovery.AgentCapability, sampleSize func(agent string) int) *Envelope {
	env := &Envelope{
		InstanceID:   instanceID,
		Timestamp:    now.UTC().Format(time.RFC3339Nano),
		Capabilities: make([]CrossInstanceSample, 0, len(caps)),
	}
	for _, c := range caps {
		s := CrossInstanceSample{
			InstanceID:      instanceID,
			AgentName:       c.Name,
			Domains:         append([]types.Domain(nil), c.Domains...),
			SuccessRate:     types.ClampRate(c.SuccessRate),
			ComplexityLevel: string(c.ComplexityLevel),
			Availability:    c.Availability(),
		}
		if !c.UpdatedAt.IsZero() {
			s.UpdatedAt = c.UpdatedAt.UTC().Format(time.RFC3339Nano)
		}
		if sampleSize != nil {
			s.SampleSize = sampleSize(c.Name)
		}
		env.Capabilities = append(env.Capabilities, s)
	}
	return env
}

// DecodeMessage accepts either an Envelope or a bare CrossInstanceSample and
// returns the samples it carries. Samples without an instance id inherit the
// envelope's.
func DecodeMessage(data []byte) ([]CrossInstanceSample, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode federation message: %w", err)
	}
	if len(env.Capabilities) > 0 {
		for i := range env.Capabilities {
			if env.Capabilities[i].InstanceID == "" {
				env.Capabilities[i].InstanceID = env.InstanceID
			}
		}
		return env.Capabilities, nil
	}

	var sample CrossInstanceSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, fmt.Errorf("decode federation sample: %w", err)
	}
	if sample.AgentName == "" {
		return nil, nil
	}
	return []CrossInstanceSample{sample}, nil
}

// SampleConfidence grows linearly with sample size and saturates at 50.
func SampleConfidence(sampleSize int) float64 {
	if sampleSize <= 0 {
		return 0
	}
	return math.Min(1.0, float64(sampleSize)/fullConfidenceSamples)
}

// RecencyConfidence decays linearly from 1 at zero age to 0 at 168 hours.
func RecencyConfidence(updatedAt string, now time.Time) float64 {
	if updatedAt == "" {
		return unknownRecency
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return unknownRecency
	}
	hours := now.Sub(t).Hours()
	return math.Max(0.0, math.Min(1.0, 1.0-hours/recencyHorizon.Hours()))
}

// Confidence combines sample and recency confidence.
func Confidence(s CrossInstanceSample, now time.Time) float64 {
	return sampleWeight*SampleConfidence(s.SampleSize) + recencyWeight*RecencyConfidence(s.UpdatedAt, now)
}

// BlendRate folds a remote rate into the local one. The result is always
// within [0, 1].
func BlendRate(local, remote, confidence float64) float64 {
	return types.ClampRate(types.ClampRate(local)*localWeight + types.ClampRate(remote)*remoteWeight*confidence)
}
