package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-vcard"

	"github.com/nugget/errand/internal/gtd"
	"github.com/nugget/errand/internal/taskstore"
)

// errNoPeople is returned when an import file holds no usable cards.
var errNoPeople = errors.New("no contacts with a name found")

// runImportPeople reads a vCard file and adds each contact as a person
// for userID. Contacts whose name already matches a person are skipped,
// so running the import twice is harmless.
func runImportPeople(ctx context.Context, stdout, stderr io.Writer, configPath, userID, path string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	people, err := parseVCards(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	store, err := taskstore.Open(filepath.Join(cfg.DataDir, "tasks.db"))
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer store.Close()

	added, skipped, err := importPeople(ctx, store, userID, people)
	if err != nil {
		return err
	}
	logger.Info("people imported", "user", userID, "file", path, "added", added, "skipped", skipped)
	fmt.Fprintf(stdout, "Imported %d people from %s (%d already known)\n", added, path, skipped)
	return nil
}

// peopleStore is the part of the task store the import needs.
type peopleStore interface {
	CreatePerson(ctx context.Context, userID string, p gtd.Person) (*gtd.Person, error)
	FindPeople(ctx context.Context, userID, name string) ([]gtd.Person, error)
}

func importPeople(ctx context.Context, store peopleStore, userID string, people []gtd.Person) (added, skipped int, err error) {
	for _, p := range people {
		matches, err := store.FindPeople(ctx, userID, p.Name)
		if err != nil {
			return added, skipped, fmt.Errorf("find %s: %w", p.Name, err)
		}
		if hasName(matches, p.Name) {
			skipped++
			continue
		}
		if _, err := store.CreatePerson(ctx, userID, p); err != nil {
			return added, skipped, fmt.Errorf("add %s: %w", p.Name, err)
		}
		added++
	}
	return added, skipped, nil
}

func hasName(people []gtd.Person, name string) bool {
	for _, p := range people {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

// parseVCards decodes every card in r. Cards without a usable name are
// dropped.
func parseVCards(r io.Reader) ([]gtd.Person, error) {
	dec := vcard.NewDecoder(r)
	var out []gtd.Person
	for {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if p, ok := personFromCard(card); ok {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, errNoPeople
	}
	return out, nil
}

func personFromCard(card vcard.Card) (gtd.Person, bool) {
	name := strings.TrimSpace(card.PreferredValue(vcard.FieldFormattedName))
	if name == "" {
		if n := card.Name(); n != nil {
			name = strings.TrimSpace(strings.Join(strings.Fields(n.GivenName+" "+n.FamilyName), " "))
		}
	}
	if name == "" {
		return gtd.Person{}, false
	}

	p := gtd.Person{
		Name:  name,
		Phone: strings.TrimSpace(card.PreferredValue(vcard.FieldTelephone)),
		Email: strings.TrimSpace(card.PreferredValue(vcard.FieldEmail)),
		Notes: strings.TrimSpace(card.Value(vcard.FieldNote)),
	}
	for _, nick := range card.Values(vcard.FieldNickname) {
		for _, alias := range strings.Split(nick, ",") {
			if alias = strings.TrimSpace(alias); alias != "" && !strings.EqualFold(alias, name) {
				p.Aliases = append(p.Aliases, alias)
			}
		}
	}
	return p, true
}
