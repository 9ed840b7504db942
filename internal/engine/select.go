// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"

	"ocibox/internal/issue"
)

// PreferenceAuto picks podman when installed, docker otherwise.
const PreferenceAuto = "auto"

func defaultLookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Selector resolves an engine preference string to a constructed engine and
// caches the outcome. The cache key is the raw preference, so changing the
// preference between calls triggers a fresh resolution.
type Selector struct {
	mu     sync.Mutex
	pref   string
	cached Engine
	err    error

	// construction hooks, replaced in tests
	lookPath  LookPathFunc
	newPodman func(ctx context.Context) (Engine, error)
	newDocker func(ctx context.Context) (Engine, error)
}

// NewSelector returns a selector constructing real engines with the given
// options.
func NewSelector(opts ...Option) *Selector {
	o := applyOptions(opts)
	return &Selector{
		lookPath: o.lookPath,
		newPodman: func(ctx context.Context) (Engine, error) {
			return NewPodmanEngine(ctx, opts...)
		},
		newDocker: func(ctx context.Context) (Engine, error) {
			return NewDockerEngine(ctx, opts...)
		},
	}
}

// Select resolves pref ("auto", "podman" or "docker") to an engine. An
// explicitly requested engine that is unavailable is a configuration error;
// under "auto" an engine failure falls through to the next candidate.
func (s *Selector) Select(ctx context.Context, pref string) (Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pref == "" {
		pref = PreferenceAuto
	}
	if s.pref == pref && (s.cached != nil || s.err != nil) {
		return s.cached, s.err
	}

	s.pref = pref
	s.cached, s.err = s.resolve(ctx, pref)
	if s.cached != nil {
		log.Debug("selected container engine", "engine", s.cached.Name(), "preference", pref)
	}
	return s.cached, s.err
}

func (s *Selector) resolve(ctx context.Context, pref string) (Engine, error) {
	switch pref {
	case string(TypePodman):
		eng, err := s.newPodman(ctx)
		if err != nil {
			return nil, &issue.ConfigurationError{
				Resource: "engine",
				Reason:   fmt.Sprintf("requested engine podman: %v", err),
			}
		}
		return eng, nil
	case string(TypeDocker):
		eng, err := s.newDocker(ctx)
		if err != nil {
			return nil, &issue.ConfigurationError{
				Resource: "engine",
				Reason:   fmt.Sprintf("requested engine docker: %v", err),
			}
		}
		return eng, nil
	case PreferenceAuto:
		if _, err := s.lookPath("podman"); err == nil {
			if eng, err := s.newPodman(ctx); err == nil {
				return eng, nil
			} else {
				log.Warn("podman found but not functional, trying docker", "error", err)
			}
		}
		if _, err := s.lookPath("docker"); err == nil {
			if eng, err := s.newDocker(ctx); err == nil {
				return eng, nil
			} else {
				log.Warn("docker found but not functional", "error", err)
			}
		}
		return nil, &issue.ConfigurationError{
			Resource: "engine",
			Reason:   "neither podman nor docker is available",
		}
	default:
		return nil, &issue.ConfigurationError{
			Resource: "engine",
			Reason:   fmt.Sprintf("unknown engine preference %q", pref),
		}
	}
}
