//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Compiles every GLSL stage in assets/shaders to SPIR-V with glslc.
func (Build) Shaders() error {
	for _, pattern := range []string{"*.vert", "*.frag"} {
		sources, err := filepath.Glob(filepath.Join(shaderDir, pattern))
		if err != nil {
			return err
		}
		for _, src := range sources {
			name := filepath.Base(src)
			if _, err := executeCmd("glslc", withArgs(name, "-o", name+".spv"), withDir(shaderDir), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Builds the vkframe binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Building vkframe...")
	_, err := executeCmd("go", withArgs("build", "-o", "bin/vkframe", "."), withStream())
	return err
}

// Runs the unit tests.
func (Build) Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
