package main

import (
	"reflect"
	"testing"
)

func TestExtractMentions(t *testing.T) {
	cases := []struct {
		content string
		want    []string
	}{
		{"no mentions here", []string{}},
		{"hey @alice look at this", []string{"alice"}},
		{"@alice @bob thoughts?", []string{"alice", "bob"}},
		{"email me at foo@example.com", []string{"example"}},
		{"@alice, and @alice again", []string{"alice", "alice"}},
	}
	for _, tc := range cases {
		got := extractMentions(tc.content)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("extractMentions(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{"editor", "viewer"} {
		if !validRole(role) {
			t.Errorf("role %q should be valid", role)
		}
	}
	for _, role := range []string{"owner", "admin", ""} {
		if validRole(role) {
			t.Errorf("role %q should be invalid", role)
		}
	}
}
