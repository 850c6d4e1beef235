// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package formatters_test

import (
	stdjson "encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/smo-cookie/detect-and-match2/internal/core"
	"github.com/smo-cookie/detect-and-match2/internal/detector"
	"github.com/smo-cookie/detect-and-match2/internal/formatters"
	_ "github.com/smo-cookie/detect-and-match2/internal/formatters/csv"
	_ "github.com/smo-cookie/detect-and-match2/internal/formatters/json"
	"github.com/smo-cookie/detect-and-match2/internal/formatters/shared"
	_ "github.com/smo-cookie/detect-and-match2/internal/formatters/text"
	_ "github.com/smo-cookie/detect-and-match2/internal/formatters/yaml"
	"github.com/smo-cookie/detect-and-match2/internal/ooxml"
	"github.com/smo-cookie/detect-and-match2/internal/redactors"
)

func sampleResults() []core.BatchResult {
	return []core.BatchResult{
		{
			Request: core.Request{Path: "/in/memo.docx"},
			Result: &core.MaskResult{
				InputPath:     "/in/memo.docx",
				OutputPath:    "/in/memo(masked).docx",
				Kind:          ooxml.KindDocx,
				Detected:      detector.Result{"PHONE": {"010-1234-5678"}, "이름": {"홍길동"}},
				Literals:      []string{"010-1234-5678", "홍길동"},
				Replacements:  2,
				ModifiedParts: []string{"word/document.xml"},
				Sources:       []string{"pattern", "semantic"},
				Duration:      15 * time.Millisecond,
			},
		},
		{
			Request: core.Request{Path: "/in/notes.txt"},
			Err: redactors.NewRedactionError(redactors.ErrorUnsupportedFormat,
				"unsupported document", "/in/notes.txt", "engine", nil),
		},
	}
}

func TestRegistry_ListsBuiltins(t *testing.T) {
	assert.Equal(t, []string{"csv", "json", "text", "yaml"}, formatters.List())

	_, err := formatters.Export("sarif", nil, formatters.FormatterOptions{})
	assert.Error(t, err)
}

func TestConvertResults(t *testing.T) {
	response := shared.ConvertResults(sampleResults(), formatters.FormatterOptions{})

	require.Len(t, response.Documents, 2)
	assert.Equal(t, shared.Summary{Total: 2, Masked: 1, Failed: 1}, response.Summary)

	masked := response.Documents[0]
	assert.Equal(t, shared.StatusMasked, masked.Status)
	assert.Equal(t, map[string]int{"PHONE": 1, "이름": 1}, masked.Categories)
	assert.Nil(t, masked.Detected)
	assert.Nil(t, masked.ModifiedParts)
	assert.Equal(t, int64(15), masked.DurationMs)

	failed := response.Documents[1]
	assert.Equal(t, shared.StatusFailed, failed.Status)
	assert.Equal(t, "unsupported_format", failed.ErrorType)
	assert.Equal(t, 2, failed.ExitCode)
}

func TestConvertResults_ShowMatchAndVerbose(t *testing.T) {
	response := shared.ConvertResults(sampleResults(), formatters.FormatterOptions{ShowMatch: true, Verbose: true})

	masked := response.Documents[0]
	assert.Equal(t, map[string][]string{"PHONE": {"010-1234-5678"}, "이름": {"홍길동"}}, masked.Detected)
	assert.Equal(t, []string{"word/document.xml"}, masked.ModifiedParts)
	assert.Equal(t, []string{"pattern", "semantic"}, masked.Sources)
}

func TestJSONFormatter(t *testing.T) {
	out, err := formatters.Export("json", sampleResults(), formatters.FormatterOptions{})
	require.NoError(t, err)

	var response shared.Response
	require.NoError(t, stdjson.Unmarshal([]byte(out), &response))
	assert.Equal(t, 2, response.Summary.Total)
	assert.NotContains(t, out, "홍길동")
}

func TestYAMLFormatter(t *testing.T) {
	out, err := formatters.Export("yaml", sampleResults(), formatters.FormatterOptions{})
	require.NoError(t, err)

	var response shared.Response
	require.NoError(t, yamlv3.Unmarshal([]byte(out), &response))
	assert.Equal(t, "/in/memo(masked).docx", response.Documents[0].Output)
	assert.Equal(t, 1, response.Summary.Failed)
}

func TestCSVFormatter(t *testing.T) {
	out, err := formatters.Export("csv", sampleResults(), formatters.FormatterOptions{})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Input,Status,Output,Kind,Categories,Literals,Replacements,Stored,Error", lines[0])
	assert.Equal(t, "/in/memo.docx,masked,/in/memo(masked).docx,docx,PHONE=1;이름=1,2,2,false,", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "/in/notes.txt,failed,,,,0,0,false,"))
}

func TestTextFormatter(t *testing.T) {
	out, err := formatters.Export("text", sampleResults(), formatters.FormatterOptions{NoColor: true})
	require.NoError(t, err)

	assert.Contains(t, out, "[MASKED ] docx         2      2  /in/memo(masked).docx")
	assert.Contains(t, out, "[FAILED ]")
	assert.Contains(t, out, "(exit 2)")
	assert.Contains(t, out, "2 document(s), 1 masked, 1 failed")
	assert.NotContains(t, out, "홍길동")

	out, err = formatters.Export("text", sampleResults(), formatters.FormatterOptions{NoColor: true, ShowMatch: true})
	require.NoError(t, err)
	assert.Contains(t, out, "이름: 홍길동")
}

func TestTextFormatter_Empty(t *testing.T) {
	out, err := formatters.Export("text", nil, formatters.FormatterOptions{NoColor: true})
	require.NoError(t, err)
	assert.Equal(t, "No documents processed.", out)
}
