package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given a text logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWithWriter(&buf, "text"), ShouldBeNil)
		SetLevel(slog.LevelInfo)
		ctx := context.Background()

		Convey("When logging with fields", func() {
			Get().Info(ctx, "stage completed", String("stage", "3"), Int64("user_id", 7), Bool("improved", true))

			Convey("Then the entry carries the message, the fields and the source", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "stage completed")
				So(out, ShouldContainSubstring, "stage=3")
				So(out, ShouldContainSubstring, "user_id=7")
				So(out, ShouldContainSubstring, "improved=true")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When using a named logger with bound fields", func() {
			Named("guard").Named("career").With(String("mode", "career")).Warn(ctx, "ceiling", Error(errors.New("boom")))

			Convey("Then the component name and the bound fields appear", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "logger=guard.career")
				So(out, ShouldContainSubstring, "mode=career")
				So(out, ShouldContainSubstring, "error=boom")
			})
		})

		Convey("When the level filters an entry", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Info(ctx, "hidden")
			Get().Debug(ctx, "hidden too")

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
			Reset(func() { SetLevel(slog.LevelInfo) })
		})
	})

	Convey("Given a JSON logger", t, func() {
		var buf bytes.Buffer
		So(InitWithWriter(&buf, "json"), ShouldBeNil)
		SetLevel(slog.LevelInfo)

		Get().Error(context.Background(), "persist failed", String("scope", "america"))

		Convey("Then entries are JSON objects", func() {
			So(strings.HasPrefix(strings.TrimSpace(buf.String()), "{"), ShouldBeTrue)
			So(buf.String(), ShouldContainSubstring, `"scope":"america"`)
		})
	})

	Convey("Given invalid settings", t, func() {
		So(SetLevelString("loud"), ShouldNotBeNil)
		_, err := New(&bytes.Buffer{}, "xml")
		So(err, ShouldNotBeNil)
	})

	Convey("Given a nop logger", t, func() {
		So(func() { Nop().Error(context.Background(), "dropped") }, ShouldNotPanic)
	})
}
