//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "config.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the testbed with validation layers enabled.
func (Run) Debug() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("run", "."), withEnv("VKFRAME_DEBUG=true", "VKFRAME_LOG_LEVEL=debug"), withStream())
	return err
}
