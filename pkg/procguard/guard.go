// Package procguard keeps a single collector instance alive and reaps browser processes a
// crashed round may leave behind.
package procguard

import (
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

// Proc is the slice of a process the guard needs.
type Proc interface {
	PID() int32
	Cmdline() (string, error)
	Kill() error
}

type Lister interface {
	List() ([]Proc, error)
}

type systemProc struct{ p *process.Process }

func (s systemProc) PID() int32               { return s.p.Pid }
func (s systemProc) Cmdline() (string, error) { return s.p.Cmdline() }
func (s systemProc) Kill() error              { return s.p.Kill() }

type systemLister struct{}

func (systemLister) List() ([]Proc, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	out := make([]Proc, 0, len(procs))
	for _, p := range procs {
		out = append(out, systemProc{p: p})
	}
	return out, nil
}

type Guard struct {
	Lister Lister
	Self   int32
	GOOS   string
	log    logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Guard {
	return &Guard{
		Lister: systemLister{},
		Self:   int32(os.Getpid()),
		GOOS:   runtime.GOOS,
		log:    log,
	}
}

// AlreadyRunning reports whether another process has name in its command line.
func (g *Guard) AlreadyRunning(name string) (bool, error) {
	procs, err := g.Lister.List()
	if err != nil {
		return false, err
	}
	for _, p := range procs {
		if p.PID() == g.Self {
			continue
		}
		cmd, err := p.Cmdline()
		if err != nil {
			// process exited or is not ours to read
			continue
		}
		if strings.Contains(cmd, name) {
			g.log.WithFields(logrus.Fields{
				"pid":     p.PID(),
				"cmdline": cmd,
			}).Warn("⚠️ Another instance is running")
			return true, nil
		}
	}
	return false, nil
}

// KillMatching kills every process whose command line contains fragment and returns how
// many were killed. It only acts on Linux; elsewhere it is a no-op.
func (g *Guard) KillMatching(fragment string) int {
	if g.GOOS != "linux" || fragment == "" {
		return 0
	}

	procs, err := g.Lister.List()
	if err != nil {
		g.log.WithError(err).Warn("⚠️ Could not list processes for cleanup")
		return 0
	}

	killed := 0
	for _, p := range procs {
		if p.PID() == g.Self {
			continue
		}
		cmd, err := p.Cmdline()
		if err != nil || !strings.Contains(cmd, fragment) {
			continue
		}
		if err := p.Kill(); err != nil {
			g.log.WithError(err).WithField("pid", p.PID()).Debug("Kill failed")
			continue
		}
		killed++
	}

	if killed > 0 {
		g.log.WithFields(logrus.Fields{
			"fragment": fragment,
			"killed":   killed,
		}).Info("🧹 Leftover processes cleaned up")
	}
	return killed
}
