//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/renderer/shader"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/cockroachdb/errors"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default runs the unit tests.
var Default = Test.All

type Test mg.Namespace

// Runs every package's tests.
func (Test) All() error {
	return sh.RunV("go", "test", "./...")
}

// Runs every package's tests with the race detector.
func (Test) Race() error {
	return sh.RunV("go", "test", "-race", "./...")
}

type Shaders mg.Namespace

// Compiles every embedded shader through the include pre-processor and validates it with naga.
func (Shaders) Validate() error {
	cache, err := shader.NewCache(recorder.New(),
		shader.WithValidation(true),
		shader.WithLogger(logger.Default()),
		shader.WithInclude("scene", scene.GPUSceneUniformSource, "SceneUniform"),
	)
	if err != nil {
		return err
	}
	defer cache.Destroy()

	var errs error
	for _, name := range shader.Names() {
		if _, err := cache.Load(name); err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		if mg.Verbose() {
			fmt.Println("ok", name)
		}
	}
	return errs
}

type Build mg.Namespace

// Builds an example from examples/ into bin/, e.g. "mage build:example scene_lit".
func (Build) Example(name string) error {
	mg.Deps(Shaders.Validate)
	src := filepath.Join("examples", name+".go")
	out := filepath.Join("bin", name)
	return sh.RunV("go", "build", "-o", out, src)
}
