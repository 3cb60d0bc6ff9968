package codeindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const tsSample = `import { Router } from 'express';

export function createRouter(name) {
  return name;
}

export const buildPayload = (x) => {
  return x;
};

export class Service {
  constructor(opts) {
    this.opts = opts;
  }

  run(input) {
    return input;
  }
}
`

func TestExtractTypeScript_FindsFunctionsClassesAndMethods(t *testing.T) {
	entities, edges := extractTypeScript(tsSample, "src/service.ts", "demo", "typescript")

	var names []string
	for _, e := range entities {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "createRouter")
	assert.Contains(t, names, "buildPayload")
	assert.Contains(t, names, "Service")
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "express")

	var containsCount int
	for _, e := range edges {
		if e.EdgeType == EdgeContains {
			containsCount++
		}
	}
	assert.GreaterOrEqual(t, containsCount, 4)
}

func TestExtractTypeScript_MethodGetsReceiverType(t *testing.T) {
	entities, _ := extractTypeScript(tsSample, "src/service.ts", "demo", "typescript")

	var run *CodeEntity
	for i := range entities {
		if entities[i].Name == "run" {
			run = &entities[i]
		}
	}
	if run == nil {
		t.Fatal("expected to find 'run' method entity")
	}
	assert.Equal(t, "Service", run.ReceiverType)
}
