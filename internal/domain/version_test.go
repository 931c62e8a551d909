package domain

import (
	"strconv"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
)

func TestVersionCodeLabel(t *testing.T) {
	qt.Assert(t, InitialVersion.Label(), qt.Equals, "v1.0")
	qt.Assert(t, VersionCode(19).Label(), qt.Equals, "v1.9")
	qt.Assert(t, VersionCode(19).Next().Label(), qt.Equals, "v2.0")
	qt.Assert(t, VersionCode(1234).Label(), qt.Equals, "v123.4")
}

func TestBumpStaysExact(t *testing.T) {
	c := InitialVersion
	for n := 1; n <= 1000; n++ {
		c = c.Next()
		want := "v" + strconv.FormatFloat(float64(10+n)/10, 'f', 1, 64)
		qt.Assert(t, c.Label(), qt.Equals, want, qt.Commentf("after %d bumps", n))
	}
	qt.Assert(t, c.Label(), qt.Equals, "v101.0")
}

func TestParseVersionLabel(t *testing.T) {
	for label, want := range map[string]VersionCode{
		"v1.0":   10,
		"1.3":    13,
		"v2":     20,
		"V10.9":  109,
		" v0.1 ": 1,
	} {
		got, err := ParseVersionLabel(label)
		qt.Assert(t, err, qt.IsNil, qt.Commentf("label %q", label))
		qt.Assert(t, got, qt.Equals, want, qt.Commentf("label %q", label))
	}

	for _, label := range []string{"", "v", "v1.10", "v-1.0", "1.", ".5", "abc", "v1.a", "vv1.0"} {
		_, err := ParseVersionLabel(label)
		qt.Assert(t, err, qt.IsNotNil, qt.Commentf("label %q", label))
		qt.Assert(t, Code(err), qt.Equals, CodeValidation)
	}
}

func TestParseRoundTripsLabel(t *testing.T) {
	for c := VersionCode(0); c < 300; c++ {
		got, err := ParseVersionLabel(c.Label())
		qt.Assert(t, err, qt.IsNil)
		qt.Assert(t, got, qt.Equals, c)
	}
}

func TestLedgerBump(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := NewVersionLedger(uuid.New(), "alice", now)
	qt.Assert(t, l.CurrentVersion, qt.Equals, "v1.0")
	qt.Assert(t, l.Entries, qt.HasLen, 1)

	for i := 0; i < 9; i++ {
		_, err := l.Bump("bob", now)
		qt.Assert(t, err, qt.IsNil)
	}
	qt.Assert(t, l.CurrentVersion, qt.Equals, "v1.9")

	entry, err := l.Bump("bob", now.Add(time.Minute))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, entry.Label, qt.Equals, "v2.0")
	qt.Assert(t, entry.CreatedBy, qt.Equals, "bob")
	qt.Assert(t, l.CurrentVersion, qt.Equals, "v2.0")
	qt.Assert(t, l.CurrentCode, qt.Equals, VersionCode(20))
	qt.Assert(t, l.Entries, qt.HasLen, 11)

	for i := 1; i < len(l.Entries); i++ {
		qt.Assert(t, l.Entries[i].Code > l.Entries[i-1].Code, qt.IsTrue)
	}
}

func TestLedgerBumpRejectsTakenLabel(t *testing.T) {
	now := time.Now().UTC()
	l := NewVersionLedger(uuid.New(), "alice", now)
	// история повреждена: v1.1 уже есть, а текущая версия осталась v1.0
	l.Entries = append(l.Entries, VersionEntry{Label: "v1.1", Code: 11})

	_, err := l.Bump("bob", now)
	qt.Assert(t, Code(err), qt.Equals, CodeDuplicateVersion)
	qt.Assert(t, l.CurrentVersion, qt.Equals, "v1.0")
	qt.Assert(t, l.Entries, qt.HasLen, 2)
}
