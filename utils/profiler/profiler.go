// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package profiler writes rotating CPU, heap and mutex profiles of a running
// node.
package profiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	cpuProfileFile  = "cpu.profile"
	memProfileFile  = "mem.profile"
	lockProfileFile = "lock.profile"
)

var (
	ErrInvalidFrequency = errors.New("profile frequency must be positive")

	errCPUProfilerRunning    = errors.New("cpu profiler already running")
	errCPUProfilerNotRunning = errors.New("cpu profiler doesn't exist")
	errNoMutexProfile        = errors.New("mutex profile not found")
)

type Config struct {
	Enabled bool          `json:"enabled"`
	Dir     string        `json:"dir"`
	Freq    time.Duration `json:"freq"`
	// MaxNumFiles is how many rotated generations of each profile are kept.
	MaxNumFiles int `json:"maxNumFiles"`
}

var DefaultConfig = Config{
	Freq:        15 * time.Minute,
	MaxNumFiles: 5,
}

// Profiler captures one profile generation at a time into dir.
type Profiler struct {
	dir             string
	cpuProfileName  string
	memProfileName  string
	lockProfileName string
	cpuProfileFile  *os.File
}

func New(dir string) *Profiler {
	return &Profiler{
		dir:             dir,
		cpuProfileName:  filepath.Join(dir, cpuProfileFile),
		memProfileName:  filepath.Join(dir, memProfileFile),
		lockProfileName: filepath.Join(dir, lockProfileFile),
	}
}

func (p *Profiler) StartCPUProfiler() error {
	if p.cpuProfileFile != nil {
		return errCPUProfilerRunning
	}
	if err := os.MkdirAll(p.dir, 0o750); err != nil {
		return err
	}
	file, err := os.Create(p.cpuProfileName)
	if err != nil {
		return err
	}
	if err := pprof.StartCPUProfile(file); err != nil {
		_ = file.Close()
		return err
	}
	p.cpuProfileFile = file
	return nil
}

func (p *Profiler) StopCPUProfiler() error {
	if p.cpuProfileFile == nil {
		return errCPUProfilerNotRunning
	}
	pprof.StopCPUProfile()
	err := p.cpuProfileFile.Close()
	p.cpuProfileFile = nil
	return err
}

// MemoryProfile writes a heap profile taken after a forced collection.
func (p *Profiler) MemoryProfile() error {
	runtime.GC()
	return p.write(p.memProfileName, pprof.WriteHeapProfile)
}

func (p *Profiler) LockProfile() error {
	profile := pprof.Lookup("mutex")
	if profile == nil {
		return errNoMutexProfile
	}
	return p.write(p.lockProfileName, func(w io.Writer) error {
		return profile.WriteTo(w, 0)
	})
}

func (p *Profiler) write(name string, writeTo func(io.Writer) error) error {
	if err := os.MkdirAll(p.dir, 0o750); err != nil {
		return err
	}
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	return errors.Join(writeTo(file), file.Close())
}

// Run profiles continuously, closing a generation every config.Freq, until
// ctx is done. The generation open when ctx ends is still written.
func Run(ctx context.Context, config Config) error {
	if config.Freq <= 0 {
		return ErrInvalidFrequency
	}
	p := New(config.Dir)
	t := time.NewTicker(config.Freq)
	defer t.Stop()

	for {
		if err := p.StartCPUProfiler(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return p.stop()
		case <-t.C:
			if err := p.stop(); err != nil {
				return err
			}
		}
		if err := p.rotate(config.MaxNumFiles); err != nil {
			return err
		}
	}
}

func (p *Profiler) stop() error {
	g := errgroup.Group{}
	g.Go(p.StopCPUProfiler)
	g.Go(p.MemoryProfile)
	g.Go(p.LockProfile)
	return g.Wait()
}

func (p *Profiler) rotate(maxNumFiles int) error {
	g := errgroup.Group{}
	for _, name := range []string{p.cpuProfileName, p.memProfileName, p.lockProfileName} {
		g.Go(func() error {
			return rotate(name, maxNumFiles)
		})
	}
	return g.Wait()
}

// rotate shifts name.1 ... name.(max-1) up by one and moves name to name.1.
func rotate(name string, maxNumFiles int) error {
	for i := maxNumFiles - 1; i > 0; i-- {
		src := fmt.Sprintf("%s.%d", name, i)
		dst := fmt.Sprintf("%s.%d", name, i+1)
		if err := renameIfExists(src, dst); err != nil {
			return err
		}
	}
	return renameIfExists(name, name+".1")
}

func renameIfExists(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	return os.Rename(src, dst)
}
