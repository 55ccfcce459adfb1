package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"ownerportal/internal/core"
)

type Store struct {
	mu         sync.Mutex
	owners     []core.Homeowner
	users      []core.PortalUser
	nextUserID int64
}

func New(owners []core.Homeowner, users []core.PortalUser) *Store {
	s := &Store{owners: dedupeOwners(owners), nextUserID: 1}
	for _, u := range users {
		if u.ID >= s.nextUserID {
			s.nextUserID = u.ID + 1
		}
		s.users = append(s.users, u)
	}
	return s
}

// NewFromFiles seeds the store from pipe-separated line files under base
// (seed_homeowners.txt, seed_portal_users.txt), falling back to a small
// sample roster when the files are missing or empty.
func NewFromFiles(base string) *Store {
	owners := readOwnerLines(filepath.Join(base, "seed_homeowners.txt"))
	users := readUserLines(filepath.Join(base, "seed_portal_users.txt"))
	if len(owners) == 0 {
		owners = []core.Homeowner{
			{ID: 1, FirstName: "Ada", LastName: "Conti", Email: "ada@example.com", Inactive: core.Bool(false)},
			{ID: 2, FirstName: "Bruno", LastName: "Esposito", Email: "bruno@example.com"},
			{ID: 3, FirstName: "Carla", LastName: "Fontana", Inactive: core.Bool(true)},
		}
	}
	if len(users) == 0 {
		users = []core.PortalUser{
			{ID: 1, HomeownerID: 1, Email: "ada@example.com", Active: true},
		}
	}
	return New(owners, users)
}

func (s *Store) ListHomeowners(_ context.Context) ([]core.Homeowner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Homeowner(nil), s.owners...), nil
}

func (s *Store) ListPortalUsers(_ context.Context) ([]core.PortalUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PortalUser(nil), s.users...), nil
}

// AppendHomeowner stores the owner and returns a synthetic row reference.
// IDs must be unique, as in the registry.
func (s *Store) AppendHomeowner(_ context.Context, h core.Homeowner) (string, error) {
	if err := h.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.owners {
		if existing.ID == h.ID {
			return "", fmt.Errorf("homeowner %d already exists", h.ID)
		}
	}
	s.owners = append(s.owners, h)
	return fmt.Sprintf("mem:owner:%d", len(s.owners)), nil
}

// AppendPortalUser stores the account, assigning an ID when none is set.
func (s *Store) AppendPortalUser(_ context.Context, u core.PortalUser) (string, error) {
	if err := u.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextUserID
	}
	if u.ID >= s.nextUserID {
		s.nextUserID = u.ID + 1
	}
	s.users = append(s.users, u)
	return fmt.Sprintf("mem:portal:%d", len(s.users)), nil
}

func (s *Store) DeactivatePortalUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users[i].Active = false
			return nil
		}
	}
	return fmt.Errorf("portal account %d not found", id)
}

// readOwnerLines parses "id|first|last[|email[|inactive]]" lines, skipping
// blanks and # comments.
func readOwnerLines(path string) []core.Homeowner {
	var out []core.Homeowner
	for _, line := range readLines(path) {
		fields := strings.Split(line, "|")
		if len(fields) < 3 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			continue
		}
		h := core.Homeowner{
			ID:        id,
			FirstName: strings.TrimSpace(fields[1]),
			LastName:  strings.TrimSpace(fields[2]),
		}
		if len(fields) > 3 {
			h.Email = strings.TrimSpace(fields[3])
		}
		if len(fields) > 4 {
			h.Inactive = parseTriState(fields[4])
		}
		out = append(out, h)
	}
	return out
}

// readUserLines parses "id|homeowner_id[|email[|active]]" lines.
func readUserLines(path string) []core.PortalUser {
	var out []core.PortalUser
	for _, line := range readLines(path) {
		fields := strings.Split(line, "|")
		if len(fields) < 2 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			continue
		}
		hoID, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			continue
		}
		u := core.PortalUser{ID: id, HomeownerID: hoID, Active: true}
		if len(fields) > 2 {
			u.Email = strings.TrimSpace(fields[2])
		}
		if len(fields) > 3 {
			if f := parseFlag(fields[3]); f != nil {
				u.Active = *f
			}
		}
		out = append(out, u)
	}
	return out
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// parseTriState reads an inactive-style column: empty means unknown.
func parseTriState(s string) *bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1", "inactive":
		return core.Bool(true)
	case "no", "false", "0", "active":
		return core.Bool(false)
	}
	return nil
}

// parseFlag reads a plain yes/no cell.
func parseFlag(s string) *bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return core.Bool(true)
	case "no", "false", "0":
		return core.Bool(false)
	}
	return nil
}

// dedupeOwners keeps the first occurrence of each ID, preserving input order.
func dedupeOwners(in []core.Homeowner) []core.Homeowner {
	seen := map[int64]struct{}{}
	out := make([]core.Homeowner, 0, len(in))
	for _, h := range in {
		if _, ok := seen[h.ID]; ok {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h)
	}
	return out
}
