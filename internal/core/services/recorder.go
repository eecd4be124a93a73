package services

import "github.com/lorrc/ticket-collab/internal/core/ports"

type noopRecorder struct{}

func (noopRecorder) MessagePersisted()        {}
func (noopRecorder) WorklogTransition(string) {}
func (noopRecorder) SLAEvaluated(string)      {}

func recorderOrNoop(r ports.Recorder) ports.Recorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}
