// Package message defines the wire types exchanged between narrator's
// clients, the daemon and the synthesis worker.
package message

// Options tunes a single synthesis. Unset fields leave the engine default.
type Options struct {
	// Volume is a linear gain applied to the synthesized audio (1.0 = unchanged).
	Volume *float64 `json:"volume,omitempty"`

	// Speed maps to the engine's length scale.
	Speed *float64 `json:"speed,omitempty"`

	// AudioVariation and SpeakingVariation map to the engine's noise scales.
	AudioVariation    *float64 `json:"audio_variation,omitempty"`
	SpeakingVariation *float64 `json:"speaking_variation,omitempty"`

	NormalizeAudio *bool `json:"normalize_audio,omitempty"`
}

// VolumeOr returns the requested volume, or def when none was given.
func (o *Options) VolumeOr(def float64) float64 {
	if o == nil || o.Volume == nil {
		return def
	}
	return *o.Volume
}

// SynthesisRequest is the body of POST /api.
type SynthesisRequest struct {
	Text    string   `json:"text"`
	Voice   string   `json:"voice,omitempty"`
	Options *Options `json:"options,omitempty"`
}

// SubmitResponse is returned with 201 Created after a job was accepted.
type SubmitResponse struct {
	// DownloadURL is the polling endpoint for the new job.
	DownloadURL string `json:"downloadUrl"`
}

// SynthesizeJob is what the daemon posts to the synthesis service.
type SynthesizeJob struct {
	JobID   string   `json:"jobId"`
	Text    string   `json:"text"`
	Voice   string   `json:"voice,omitempty"`
	Options *Options `json:"options,omitempty"`
}

// QueuedResponse acknowledges a SynthesizeJob.
type QueuedResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// Completion statuses reported by the synthesis service.
const (
	CompletionDone   = "done"
	CompletionFailed = "failed"
)

// Completion is the callback the synthesis service sends when a job ends,
// either to POST /api/notify-done or over the bus.
type Completion struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`

	// Path locates the finished audio. Set when Status is "done".
	Path string `json:"path,omitempty"`

	// Error describes the failure. Set when Status is "failed".
	Error string `json:"error,omitempty"`
}
