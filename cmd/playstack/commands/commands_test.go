package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/okian/playstack/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const eventsJSON = `[
  {"id":"e1","teamId":"t1","gameId":"g1","playFamily":"RUN","gainedYards":12,"down":1,"distance":10,"ballOn":"O25","createdAt":"2024-09-01T18:00:00Z"},
  {"id":"e2","teamId":"t1","gameId":"g1","playFamily":"PASS","gainedYards":20,"down":2,"distance":8,"ballOn":"O37","createdAt":"2024-09-01T18:00:20Z"},
  {"id":"e3","teamId":"t1","gameId":"g1","playFamily":"PUNT","gainedYards":0,"createdAt":"2024-09-01T18:00:40Z"}
]`

const gamesJSON = `[{"id":"g1","opponentName":"Hawks","startTime":"2024-09-01T17:00:00Z","status":"final"}]`

func init() {
	color.NoColor = true
}

func execute(args ...string) (string, error) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	Convey("Given the root command", t, func() {
		Convey("Without a subcommand it shows help", func() {
			out, err := execute()
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Usage:")
			So(out, ShouldContainSubstring, "summarize")
		})

		Convey("Unknown flags are rejected", func() {
			_, err := execute("--unknown-flag")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unknown flag")
		})
	})
}

func TestSummarizeCommand(t *testing.T) {
	Convey("Given events and games on disk", t, func() {
		events := writeTemp(t, "events.json", eventsJSON)
		games := writeTemp(t, "games.json", gamesJSON)

		Convey("When summarizing as JSON with default thresholds", func() {
			out, err := execute("summarize", "--events", events, "--games", games, "--team", "t1", "--json")
			So(err, ShouldBeNil)

			var res struct {
				Stacks []model.Stack `json:"stacks"`
			}
			So(json.Unmarshal([]byte(out), &res), ShouldBeNil)

			Convey("Then both scrimmage plays are explosive", func() {
				So(len(res.Stacks), ShouldEqual, 1)
				So(res.Stacks[0].Plays, ShouldEqual, 3)
				So(res.Stacks[0].ExplosiveRate, ShouldAlmostEqual, 2.0/3.0)
			})
		})

		Convey("When raising the thresholds", func() {
			out, err := execute("summarize", "--events", events, "--games", games, "--team", "t1", "--run", "18", "--pass", "30", "--json")
			So(err, ShouldBeNil)

			var res struct {
				Stacks []model.Stack `json:"stacks"`
			}
			So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
			So(res.Stacks[0].ExplosiveRate, ShouldEqual, 0.0)
		})

		Convey("When printing the table", func() {
			out, err := execute("summarize", "--events", events, "--games", games, "--team", "t1")
			So(err, ShouldBeNil)

			Convey("Then stacks, the team line and data gaps are shown", func() {
				So(out, ShouldContainSubstring, "Hawks")
				So(out, ShouldContainSubstring, "Team t1: 3 plays over 1 games")
				So(out, ShouldContainSubstring, "1 unknown family")
			})
		})

		Convey("When the events file is missing", func() {
			_, err := execute("summarize", "--events", filepath.Join(t.TempDir(), "nope.json"), "--team", "t1")
			So(err, ShouldNotBeNil)
		})

		Convey("When the team flag is missing", func() {
			_, err := execute("summarize", "--events", events)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestFreshnessCommand(t *testing.T) {
	Convey("Given a last update at 18:00:00Z", t, func() {
		base := "1725213600000" // 2024-09-01T18:00:00Z

		Convey("Exactly 30s later it is fresh", func() {
			out, err := execute("freshness", "--last-updated", "2024-09-01T17:59:30Z", "--now", base)
			So(err, ShouldBeNil)
			So(out, ShouldStartWith, "fresh")
		})

		Convey("Two minutes later it is stale", func() {
			out, _ := execute("freshness", "--last-updated", "2024-09-01T17:58:00Z", "--now", base)
			So(out, ShouldStartWith, "stale")
		})

		Convey("Without a timestamp it is offline", func() {
			out, _ := execute("freshness", "--now", base)
			So(out, ShouldStartWith, "offline")
			So(out, ShouldContainSubstring, "never")
		})
	})
}

func TestGenerateCommand(t *testing.T) {
	Convey("Given the generate command", t, func() {
		Convey("When printing to stdout", func() {
			out, err := execute("generate", "--team", "t9", "--games", "2", "--plays", "5", "--seed", "3")
			So(err, ShouldBeNil)

			var doc struct {
				Games  []model.GameMeta  `json:"games"`
				Events []model.PlayEvent `json:"events"`
			}
			So(json.Unmarshal([]byte(out), &doc), ShouldBeNil)
			So(len(doc.Games), ShouldEqual, 2)
			So(len(doc.Events), ShouldEqual, 10)
			So(doc.Events[0].TeamID, ShouldEqual, "t9")
		})

		Convey("When writing files that summarize can read", func() {
			dir := t.TempDir()
			events, games := filepath.Join(dir, "e.json"), filepath.Join(dir, "g.json")
			out, err := execute("generate", "--team", "t9", "--games", "2", "--plays", "5", "--events-out", events, "--games-out", games)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "wrote 10 events across 2 games")

			out, err = execute("summarize", "--events", events, "--games", games, "--team", "t9")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Team t9: 10 plays over 2 games")
		})

		Convey("When the counts are invalid", func() {
			_, err := execute("generate", "--team", "t9", "--games", "0")
			So(err, ShouldNotBeNil)
		})
	})
}
