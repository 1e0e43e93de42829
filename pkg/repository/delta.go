/*
Package repository implements the RAM Object Repository (spec §4.8, C9)
and the Disk Object Repository (spec §4.9, C10): both share the same
public contract (insert/fetch/identify/update/delete, three-phase init,
append-only delta log) and differ only in where a record's member values
live.
*/
package repository

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hadronzoo/deltadb/pkg/dberr"
)

// deltaLine is one parsed delta log line: @[rN.]cC.oO.mM=ENCODED_VALUE\n
// (spec §3 "Delta log line").
type deltaLine struct {
	ReposID  uint32 // 0 if absent
	HasRepos bool
	ClassID  uint32
	ObjectID uint32
	MemberID uint32
	Value    string // decoded (unescaped)
}

// escapeValue applies the delta log escaping rules with 0x01 as the only
// escape byte: 0x01 0x01 -> literal 0x01; \r -> 0x01 'r'; \n -> 0x01 'n'.
// A 0x5C (backslash) byte is copied through unchanged; neither this
// function nor unescapeValue treats it as an escape.
func escapeValue(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case 0x01:
			b.WriteByte(0x01)
			b.WriteByte(0x01)
		case '\r':
			b.WriteByte(0x01)
			b.WriteByte('r')
		case '\n':
			b.WriteByte(0x01)
			b.WriteByte('n')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func unescapeValue(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != 0x01 {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", dberr.New(dberr.KindFormat, "repository.unescapeValue", "dangling escape byte")
		}
		switch s[i] {
		case 0x01:
			b.WriteByte(0x01)
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			return "", dberr.New(dberr.KindFormat, "repository.unescapeValue", fmt.Sprintf("bad escape sequence 0x01%q", s[i]))
		}
	}
	return b.String(), nil
}

// formatDelta renders a delta log line, with or without a repository-ID
// prefix (spec §3 "A line with an r prefix before c is a per-repository
// delta").
func formatDelta(reposID uint32, hasRepos bool, classID, objectID, memberID uint32, value string) string {
	var b strings.Builder
	b.WriteByte('@')
	if hasRepos {
		fmt.Fprintf(&b, "r%d.", reposID)
	}
	fmt.Fprintf(&b, "c%d.o%d.m%d=%s\n", classID, objectID, memberID, escapeValue(value))
	return b.String()
}

// parseDelta parses one delta log line (without its trailing newline).
func parseDelta(line string) (deltaLine, error) {
	var dl deltaLine
	if !strings.HasPrefix(line, "@") {
		return dl, dberr.New(dberr.KindFormat, "repository.parseDelta", "missing @ prefix")
	}
	rest := line[1:]

	if strings.HasPrefix(rest, "r") {
		dot := strings.IndexByte(rest, '.')
		if dot < 0 {
			return dl, dberr.New(dberr.KindFormat, "repository.parseDelta", "malformed repository field")
		}
		n, err := strconv.ParseUint(rest[1:dot], 10, 32)
		if err != nil {
			return dl, dberr.Wrap(dberr.KindFormat, "repository.parseDelta", "bad repository id", err)
		}
		dl.ReposID = uint32(n)
		dl.HasRepos = true
		rest = rest[dot+1:]
	}

	if !strings.HasPrefix(rest, "c") {
		return dl, dberr.New(dberr.KindFormat, "repository.parseDelta", "missing class field")
	}
	eq := strings.IndexByte(rest, '=')
	if eq < 0 {
		return dl, dberr.New(dberr.KindFormat, "repository.parseDelta", "missing value")
	}
	fields := strings.Split(rest[:eq], ".")
	if len(fields) != 3 {
		return dl, dberr.New(dberr.KindFormat, "repository.parseDelta", "expected c.o.m fields")
	}
	classID, err := strconv.ParseUint(fields[0][1:], 10, 32)
	if err != nil {
		return dl, dberr.Wrap(dberr.KindFormat, "repository.parseDelta", "bad class id", err)
	}
	objectID, err := strconv.ParseUint(fields[1][1:], 10, 32)
	if err != nil {
		return dl, dberr.Wrap(dberr.KindFormat, "repository.parseDelta", "bad object id", err)
	}
	memberID, err := strconv.ParseUint(fields[2][1:], 10, 32)
	if err != nil {
		return dl, dberr.Wrap(dberr.KindFormat, "repository.parseDelta", "bad member id", err)
	}
	dl.ClassID = uint32(classID)
	dl.ObjectID = uint32(objectID)
	dl.MemberID = uint32(memberID)

	value, err := unescapeValue(rest[eq+1:])
	if err != nil {
		return dl, err
	}
	dl.Value = value
	return dl, nil
}

// readDeltaLines scans r line by line, parsing every non-empty line.
func readDeltaLines(r io.Reader) ([]deltaLine, error) {
	var out []deltaLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		dl, err := parseDelta(line)
		if err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	if err := scanner.Err(); err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "repository.readDeltaLines", "scan delta log", err)
	}
	return out, nil
}
