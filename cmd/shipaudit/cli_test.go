package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/shipaudit/internal/config"
	"github.com/okian/shipaudit/internal/domain/ontime"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvFile, "")
	t.Setenv("SHIPAUDIT_PAUSE_MS", "0")
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassifyCmd(t *testing.T) {
	Convey("Given the classify command", t, func() {
		Convey("An in-window 2nd Day Air delivery needs research", func() {
			out, err := execute(t, "classify", "2nd Day Air", "01/06/2025", "10:00 A.M.", "01/08/2025", "2:00 P.M.")
			So(err, ShouldBeNil)
			So(strings.TrimSpace(out), ShouldEqual, "Research")
		})

		Convey("An unknown service level fails", func() {
			_, err := execute(t, "classify", "Unknown Level", "01/06/2025", "10:00 A.M.", "01/08/2025", "2:00 P.M.")
			So(errors.Is(err, ontime.ErrInvalidServiceLevel), ShouldBeTrue)
		})

		Convey("Wrong argument count is rejected", func() {
			_, err := execute(t, "classify", "2nd Day Air")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestCatalogCmd(t *testing.T) {
	Convey("The catalog command lists every service level", t, func() {
		out, err := execute(t, "catalog")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "SERVICE LEVEL")
		So(out, ShouldContainSubstring, "Next Day Air Early AM")
		So(out, ShouldContainSubstring, "1:00 P.M.")
	})
}

func TestSampleAndRunCmd(t *testing.T) {
	Convey("Given a generated sample", t, func() {
		dir := t.TempDir()
		out, err := execute(t, "sample", "--count", "12", "--seed", "3", "--dir", dir)
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "batch.csv")

		batch := filepath.Join(dir, "batch.csv")
		fix := filepath.Join(dir, "fixture.yaml")
		results := filepath.Join(dir, "results.csv")
		prom := filepath.Join(dir, "shipaudit.prom")

		Convey("When it is run against the fixture", func() {
			out, err := execute(t, "run", "--input", batch, "--output", results, "--fixture", fix,
				"--metrics", prom, "--log-level", "error")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "12 processed")

			Convey("Then the output has a row per shipment", func() {
				data, err := os.ReadFile(results)
				So(err, ShouldBeNil)
				lines := strings.Split(strings.TrimSpace(string(data)), "\n")
				So(len(lines), ShouldEqual, 13)
				So(lines[0], ShouldEqual, "Airbill Number/BOL Number,Service Level,Reference,Ship Date,Delivery Date,Delivery Time,On Time?,Weather?")
			})

			Convey("Then metrics are exported", func() {
				data, err := os.ReadFile(prom)
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, "shipaudit_batch_records_total")
			})

			Convey("And run again", func() {
				out, err := execute(t, "run", "--input", batch, "--output", results, "--fixture", fix, "--log-level", "error")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "12 skipped")
			})
		})

		Convey("When it is dry-run with two sessions", func() {
			out, err := execute(t, "run", "--input", batch, "--fixture", fix, "--dry-run", "--sessions", "2", "--log-level", "error")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "On Time?")
			_, statErr := os.Stat(results)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})
	})
}

func TestRunCmdErrors(t *testing.T) {
	Convey("Run without an input fails with an invalid config", t, func() {
		_, err := execute(t, "run", "--output", filepath.Join(t.TempDir(), "out.csv"), "--fixture", "x.yaml")
		So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("Run with a bad log level fails", t, func() {
		_, err := execute(t, "catalog", "--log-level", "shout")
		So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
	})
}
