package report

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ormasoftchile/verity/pkg/atomicfile"
	"github.com/ormasoftchile/verity/pkg/checkpoint"
)

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Name     string       `xml:"name,attr"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Time     string       `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name       string           `xml:"name,attr"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       string           `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	Properties *junitProperties `xml:"properties,omitempty"`
	Cases      []junitCase      `xml:"testcase"`
}

type junitProperties struct {
	Items []junitProperty `xml:"property"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// WriteJUnit writes the checkpoint as JUnit XML. Each scenario is a test
// suite whose test cases are its steps, with the scenario ID as the
// classname. Skipped scenarios appear as a single skipped test case.
func WriteJUnit(w io.Writer, cp *checkpoint.Checkpoint) error {
	doc := buildJUnit(cp)
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode junit: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// GenerateJUnit writes the JUnit report to path atomically.
func GenerateJUnit(path string, cp *checkpoint.Checkpoint) error {
	var buf bytes.Buffer
	if err := WriteJUnit(&buf, cp); err != nil {
		return err
	}
	if err := atomicfile.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write junit: %w", err)
	}
	return nil
}

func buildJUnit(cp *checkpoint.Checkpoint) junitSuites {
	doc := junitSuites{Name: cp.RunID}
	var total time.Duration

	for _, rec := range cp.Completed {
		suite := junitSuite{
			Name:      rec.ID,
			Time:      seconds(time.Duration(rec.Duration)),
			Timestamp: rec.CompletedAt.UTC().Format(time.RFC3339),
			Properties: &junitProperties{Items: []junitProperty{
				{Name: "confidence", Value: strconv.Itoa(rec.Confidence)},
			}},
		}
		for _, st := range rec.Steps {
			tc := junitCase{Name: st.Name, Classname: rec.ID, Time: seconds(time.Duration(st.Duration))}
			switch st.Status {
			case checkpoint.StepFailed, checkpoint.StepTimeout:
				tc.Failure = &junitFailure{Message: st.Message, Type: string(st.Status), Text: st.Message}
				suite.Failures++
			case checkpoint.StepSkipped:
				msg := st.Message
				if msg == "" {
					msg = "not run"
				}
				tc.Skipped = &junitSkipped{Message: msg}
				suite.Skipped++
			}
			suite.Cases = append(suite.Cases, tc)
		}
		// A scenario can fail without a failed step (fatal setup) or have
		// no steps at all; it still needs a test case that says so.
		if len(rec.Steps) == 0 || (rec.Status == checkpoint.StatusFailed && suite.Failures == 0) {
			tc := junitCase{Name: rec.ID, Classname: rec.ID, Time: seconds(time.Duration(rec.Duration))}
			if rec.Status == checkpoint.StatusFailed {
				tc.Failure = &junitFailure{Message: "scenario failed", Type: string(checkpoint.StatusFailed), Text: "scenario failed"}
				suite.Failures++
			}
			suite.Cases = append(suite.Cases, tc)
		}
		suite.Tests = len(suite.Cases)

		doc.Suites = append(doc.Suites, suite)
		doc.Tests += suite.Tests
		doc.Failures += suite.Failures
		doc.Skipped += suite.Skipped
		total += time.Duration(rec.Duration)
	}

	for _, sk := range cp.Skipped {
		doc.Suites = append(doc.Suites, junitSuite{
			Name:    sk.ID,
			Tests:   1,
			Skipped: 1,
			Time:    seconds(0),
			Cases: []junitCase{{
				Name:      sk.ID,
				Classname: sk.ID,
				Time:      seconds(0),
				Skipped:   &junitSkipped{Message: sk.Reason},
			}},
		})
		doc.Tests++
		doc.Skipped++
	}

	doc.Time = seconds(total)
	return doc
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
