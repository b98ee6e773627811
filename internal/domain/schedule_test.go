package domain

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseScheduleLine(t *testing.T) {
	Convey("Given schedule table lines", t, func() {
		Convey("A five field job is split into expression and command", func() {
			e := ParseScheduleLine("0 2 * * *   uvx obx --database db1 --non-interactive")
			So(e.IsJob(), ShouldBeTrue)
			So(e.Expression, ShouldEqual, "0 2 * * *")
			So(e.Command, ShouldEqual, "uvx obx --database db1 --non-interactive")
			So(e.Raw, ShouldEqual, "0 2 * * *   uvx obx --database db1 --non-interactive")
		})

		Convey("A descriptor job has a one word expression", func() {
			e := ParseScheduleLine("@daily /usr/bin/backup.sh")
			So(e.Expression, ShouldEqual, "@daily")
			So(e.Command, ShouldEqual, "/usr/bin/backup.sh")
		})

		Convey("Comments, blank lines and assignments are not jobs", func() {
			for _, line := range []string{"", "   ", "# 0 2 * * * obx", "MAILTO=root", "PATH=/usr/bin:/bin"} {
				e := ParseScheduleLine(line)
				So(e.IsJob(), ShouldBeFalse)
				So(e.Raw, ShouldEqual, line)
			}
		})

		Convey("A line with too few fields is not a job", func() {
			So(ParseScheduleLine("0 2 * *").IsJob(), ShouldBeFalse)
			So(ParseScheduleLine("0 2 * * *").IsJob(), ShouldBeFalse)
		})
	})
}

func TestScheduleTable(t *testing.T) {
	Convey("Given a table text", t, func() {
		text := "# backups\nMAILTO=root\n\n0 1 * * * /usr/bin/foreign\n0 2 * * * uvx obx --database db1\n"

		Convey("Parse then Render is byte for byte identical", func() {
			table := ParseScheduleTable(text)
			So(len(table), ShouldEqual, 5)
			So(table.Render(), ShouldEqual, text)
		})

		Convey("A missing trailing newline is added on render", func() {
			table := ParseScheduleTable("0 1 * * * /usr/bin/foreign")
			So(table.Render(), ShouldEqual, "0 1 * * * /usr/bin/foreign\n")
		})

		Convey("An empty text is an empty table", func() {
			table := ParseScheduleTable("")
			So(len(table), ShouldEqual, 0)
			So(table.Render(), ShouldEqual, "")
		})

		Convey("Matching returns only entries with the signature", func() {
			sig, err := ParseSignature("uvx obx")
			So(err, ShouldBeNil)
			matches := ParseScheduleTable(text).Matching(sig)
			So(len(matches), ShouldEqual, 1)
			So(matches[0].Command, ShouldEqual, "uvx obx --database db1")
		})
	})
}

func TestSignature(t *testing.T) {
	Convey("Given the signature for 'uvx obx' and 'obx'", t, func() {
		sig, err := ParseSignature("obx", "uvx obx")
		So(err, ShouldBeNil)
		So(sig.Primary(), ShouldResemble, []string{"obx"})

		Convey("Commands launched by the tool match", func() {
			for _, line := range []string{
				"0 2 * * * uvx obx --database db1 --non-interactive",
				"0 2 * * * obx --database db1",
				"0 2 * * * /usr/local/bin/obx --database db1",
				"0 2 * * * PGPASSFILE=/root/.pgpass obx --database db1",
				"0 2 * * * obx",
			} {
				So(sig.Matches(ParseScheduleLine(line)), ShouldBeTrue)
			}
		})

		Convey("Unrelated commands mentioning the tool do not match", func() {
			for _, line := range []string{
				"0 2 * * * /usr/bin/backup.sh obx",
				"0 2 * * * echo uvx obx",
				"0 2 * * * uvx obx-other --database db1",
				"0 2 * * * uvx backup --database db1",
				"0 2 * * * obxtool --database db1",
				"# 0 2 * * * obx --database db1",
			} {
				So(sig.Matches(ParseScheduleLine(line)), ShouldBeFalse)
			}
		})

		Convey("An empty launcher list is rejected", func() {
			_, err := ParseSignature("", "  ")
			So(err, ShouldNotBeNil)
		})

		Convey("An unbalanced launcher is rejected", func() {
			_, err := ParseSignature("'obx")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestScheduleEntry(t *testing.T) {
	Convey("Given schedule entries", t, func() {
		Convey("NewScheduleEntry joins expression and command", func() {
			e := NewScheduleEntry(" 0 3 * * * ", " obx --database db2 ")
			So(e.Raw, ShouldEqual, "0 3 * * * obx --database db2")
			So(e.IsJob(), ShouldBeTrue)
		})

		Convey("SameJob ignores whitespace but not content", func() {
			a := ParseScheduleLine("0 3 * * *  obx  --database db2")
			b := NewScheduleEntry("0 3 * * *", "obx --database db2")
			c := NewScheduleEntry("0 4 * * *", "obx --database db2")
			So(a.SameJob(b), ShouldBeTrue)
			So(a.SameJob(c), ShouldBeFalse)
		})
	})
}

func TestParseAction(t *testing.T) {
	Convey("ParseAction accepts the three actions", t, func() {
		for in, want := range map[string]Action{"replace": ActionReplace, "ADD": ActionAdd, " cancel ": ActionCancel} {
			got, err := ParseAction(in)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}
		_, err := ParseAction("merge")
		So(err, ShouldNotBeNil)
		So(ActionAdd.String(), ShouldEqual, "add")
	})
}
