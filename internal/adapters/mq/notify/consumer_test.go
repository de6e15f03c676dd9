package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/okian/playstack/internal/domain/model"
	"github.com/segmentio/kafka-go"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeFetcher struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	errs      []error
	committed []int64
	closed    bool
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return kafka.Message{}, err
	}
	if len(f.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeFetcher) Close() error {
	f.closed = true
	return nil
}

type fakeSubmitter struct {
	mu     sync.Mutex
	got    []model.Notification
	accept bool
}

func (s *fakeSubmitter) Submit(_ context.Context, n model.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.accept
}

func msg(offset int64, key, value string) kafka.Message {
	return kafka.Message{
		Topic:     "play-updates",
		Partition: 2,
		Offset:    offset,
		Key:       []byte(key),
		Value:     []byte(value),
		Time:      time.Date(2024, 9, 1, 18, 0, 0, 0, time.UTC),
	}
}

func TestConfigValidate(t *testing.T) {
	Convey("Given consumer configs", t, func() {
		So(Config{}.Validate(), ShouldEqual, ErrNoBrokers)
		So(Config{Brokers: []string{"b:9092"}}.Validate(), ShouldEqual, ErrNoTopic)
		So(Config{Brokers: []string{"b:9092"}, Topic: "t"}.Validate(), ShouldEqual, ErrNoGroup)
		So(Config{Brokers: []string{"b:9092"}, Topic: "t", GroupID: "g"}.Validate(), ShouldBeNil)

		Convey("New rejects an invalid config before dialing", func() {
			c, err := New(Config{}, &fakeSubmitter{})
			So(c, ShouldBeNil)
			So(err, ShouldEqual, ErrNoBrokers)
		})
	})
}

func TestDecode(t *testing.T) {
	Convey("Given notification payloads", t, func() {
		Convey("A full payload is kept as sent", func() {
			n, err := Decode(msg(1, "", `{"id":"n-1","teamId":"team-a","reason":"events","at":"2024-09-01T17:00:00Z"}`))
			So(err, ShouldBeNil)
			So(n.ID, ShouldEqual, "n-1")
			So(n.TeamID, ShouldEqual, "team-a")
			So(n.Reason, ShouldEqual, "events")
			So(n.At.Equal(time.Date(2024, 9, 1, 17, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("Missing fields are derived from the message", func() {
			n, err := Decode(msg(42, "team-b", `{}`))
			So(err, ShouldBeNil)
			So(n.TeamID, ShouldEqual, "team-b")
			So(n.ID, ShouldEqual, "play-updates/2/42")
			So(n.At.Equal(time.Date(2024, 9, 1, 18, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("A payload without any team is rejected", func() {
			_, err := Decode(msg(3, "", `{"id":"x"}`))
			So(errors.Is(err, ErrDecode), ShouldBeTrue)
		})

		Convey("Invalid JSON is rejected", func() {
			_, err := Decode(msg(4, "team-a", `{not json`))
			So(errors.Is(err, ErrDecode), ShouldBeTrue)
		})
	})
}

func TestConsumerRun(t *testing.T) {
	Convey("Given a consumer over a fake fetcher", t, func() {
		fetcher := &fakeFetcher{
			errs: []error{context.DeadlineExceeded, errors.New("broker hiccup")},
			msgs: []kafka.Message{
				msg(10, "", `{"id":"a","teamId":"team-a"}`),
				msg(11, "", `garbage`),
				msg(12, "team-b", `{"reason":"games"}`),
			},
		}
		sub := &fakeSubmitter{accept: true}
		c, err := NewWithFetcher(fetcher, sub, WithPollTimeout(10*time.Millisecond))
		So(err, ShouldBeNil)

		Convey("When it runs until the reader is exhausted", func() {
			err := c.Run(context.Background())

			Convey("Then valid notifications are submitted in order", func() {
				So(err, ShouldBeNil)
				So(len(sub.got), ShouldEqual, 2)
				So(sub.got[0].ID, ShouldEqual, "a")
				So(sub.got[1].TeamID, ShouldEqual, "team-b")
			})

			Convey("Then every fetched message is committed", func() {
				So(fetcher.committed, ShouldResemble, []int64{10, 11, 12})
			})
		})

		Convey("When the submitter rejects", func() {
			sub.accept = false
			So(c.Run(context.Background()), ShouldBeNil)

			Convey("Then messages are still committed", func() {
				So(len(sub.got), ShouldEqual, 2)
				So(len(fetcher.committed), ShouldEqual, 3)
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			So(c.Run(ctx), ShouldEqual, context.Canceled)
			So(sub.got, ShouldBeEmpty)
		})

		Convey("Close closes the fetcher", func() {
			So(c.Close(), ShouldBeNil)
			So(fetcher.closed, ShouldBeTrue)
		})
	})

	Convey("Given a nil submitter", t, func() {
		_, err := NewWithFetcher(&fakeFetcher{}, nil)
		So(err, ShouldEqual, ErrNilSubmitter)
	})
}
