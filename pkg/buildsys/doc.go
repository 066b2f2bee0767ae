// Package buildsys implements the task runner behind the asset pipeline.
// Tasks are either Go functions registered at startup or shell tasks declared in an
// optional Starlark script; both live in the same TaskList and can be composed into
// sequential and parallel pipelines. Shell commands run in-process on top of mvdan.cc/sh.
package buildsys
