package server

import (
	"github.com/me/framestep/internal/life"
	"github.com/me/framestep/internal/scheduler"
)

// Live is the running simulation as seen by the API. Both methods are called
// from request goroutines and must be safe for concurrent use.
type Live interface {
	Stats() scheduler.Stats
	RenderCommitted() string
}

// LifeLoop exposes a Life frame loop through Live.
func LifeLoop(loop *scheduler.FrameLoop[life.Cell]) Live {
	return lifeLoop{loop: loop}
}

type lifeLoop struct {
	loop *scheduler.FrameLoop[life.Cell]
}

func (l lifeLoop) Stats() scheduler.Stats { return l.loop.Stats() }

func (l lifeLoop) RenderCommitted() string { return life.Render(l.loop.Committed()) }
