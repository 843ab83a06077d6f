package models

import (
	"fmt"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateName checks the agent name constraints from the data model:
// 3-64 chars, lowercase alphanumerics plus hyphen, no leading/trailing
// hyphen.
func ValidateName(name string) error {
	if len(name) < 3 || len(name) > 64 {
		return fmt.Errorf("name must be 3-64 characters, got %d", len(name))
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must be lowercase alphanumerics and hyphens, no leading/trailing hyphen")
	}
	return nil
}

// ValidateSpec checks the resource-footprint bounds from the data model,
// filling in defaults for zero-valued fields.
func ValidateSpec(spec *AgentSpec) error {
	if spec.CPUMillicores == 0 {
		spec.CPUMillicores = MinCPUMillicores
	}
	if spec.MemoryMB == 0 {
		spec.MemoryMB = MinMemoryMB
	}
	if spec.RuntimeVersion == "" {
		spec.RuntimeVersion = DefaultRuntimeVersion
	}
	if spec.CPUMillicores < MinCPUMillicores || spec.CPUMillicores > MaxCPUMillicores {
		return fmt.Errorf("cpu_millicores must be in [%d,%d], got %d", MinCPUMillicores, MaxCPUMillicores, spec.CPUMillicores)
	}
	if spec.MemoryMB < MinMemoryMB || spec.MemoryMB > MaxMemoryMB {
		return fmt.Errorf("memory_mb must be in [%d,%d], got %d", MinMemoryMB, MaxMemoryMB, spec.MemoryMB)
	}
	return nil
}
