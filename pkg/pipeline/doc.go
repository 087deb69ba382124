// Package pipeline implements a small cross-compile build-and-deploy system based on
// Starlark for the profile declarations and mvdan.cc/sh for the shell runtime.
// A profile bundles a target triple, the environment the build tool needs to resolve
// dependencies against a cross sysroot, the build commands and an optional deploy
// destination.
package pipeline
