// Package blendresult blends Robot Framework result files into a single
// comparison matrix and exports it as an OpenDocument spreadsheet.
package blendresult

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Test statuses as written by Robot Framework.
const (
	StatusPass   = "PASS"
	StatusFail   = "FAIL"
	StatusSkip   = "SKIP"
	StatusNotRun = "NOT RUN"
)

// TestResult is the outcome of a single test case.
type TestResult struct {
	Suite   []string
	Name    string
	Status  string
	Message string
}

// Run holds every test result found in one output.xml document.
type Run struct {
	Name  string
	Tests []TestResult
}

type xmlRobot struct {
	XMLName xml.Name   `xml:"robot"`
	Suites  []xmlSuite `xml:"suite"`
}

type xmlSuite struct {
	Name   string     `xml:"name,attr"`
	Suites []xmlSuite `xml:"suite"`
	Tests  []xmlTest  `xml:"test"`
}

type xmlTest struct {
	Name   string    `xml:"name,attr"`
	Status xmlStatus `xml:"status"`
}

type xmlStatus struct {
	Status  string `xml:"status,attr"`
	Message string `xml:",chardata"`
}

// Parse decodes a Robot Framework output.xml document.
func Parse(name, document string) (*Run, error) {
	var robot xmlRobot
	if err := xml.Unmarshal([]byte(document), &robot); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	run := &Run{Name: name}

	for _, suite := range robot.Suites {
		collectTests(run, nil, suite)
	}

	return run, nil
}

func collectTests(run *Run, parents []string, suite xmlSuite) {
	path := make([]string, len(parents), len(parents)+1)
	copy(path, parents)
	path = append(path, suite.Name)

	for _, test := range suite.Tests {
		status := strings.ToUpper(strings.TrimSpace(test.Status.Status))
		if status == "" {
			status = StatusNotRun
		}

		run.Tests = append(run.Tests, TestResult{
			Suite:   path,
			Name:    test.Name,
			Status:  status,
			Message: strings.TrimSpace(test.Status.Message),
		})
	}

	for _, child := range suite.Suites {
		collectTests(run, path, child)
	}
}

// Counts returns the number of passed, failed and skipped tests.
func (r *Run) Counts() (passed, failed, skipped int) {
	for _, test := range r.Tests {
		switch test.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusSkip:
			skipped++
		}
	}

	return passed, failed, skipped
}

// ParseToText renders a document as one line per test followed by totals.
func ParseToText(document string) (string, error) {
	run, err := Parse("document", document)
	if err != nil {
		return "", err
	}

	var sb strings.Builder

	for _, test := range run.Tests {
		sb.WriteString(testKey(test, len(test.Suite)))
		sb.WriteByte('\t')
		sb.WriteString(test.Status)
		sb.WriteByte('\n')
	}

	passed, failed, skipped := run.Counts()
	sb.WriteString(fmt.Sprintf("total=%d passed=%d failed=%d skipped=%d\n",
		len(run.Tests), passed, failed, skipped))

	return sb.String(), nil
}

// testKey joins the innermost depth suite names and the test name.
func testKey(test TestResult, depth int) string {
	suite := test.Suite
	if depth < len(suite) {
		suite = suite[len(suite)-depth:]
	}

	parts := make([]string, 0, len(suite)+1)
	parts = append(parts, suite...)
	parts = append(parts, test.Name)

	return strings.Join(parts, ".")
}
