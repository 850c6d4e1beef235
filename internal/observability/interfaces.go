// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package observability

// Observable interface for all components that need observability
type Observable interface {
	// GetComponentName returns the component identifier
	GetComponentName() string
}

// StepTracer is satisfied by observers that can trace nested processing steps
type StepTracer interface {
	StartStep(component, step, filePath string) func(success bool, details string)
	LogDetail(component, detail string)
	LogMetric(component, metric string, value interface{})
}

// Tracer returns the debug step tracer when the observer runs in debug mode, nil otherwise
func (o *StandardObserver) Tracer() StepTracer {
	if o == nil || o.DebugObserver == nil {
		return nil
	}
	return o.DebugObserver
}
