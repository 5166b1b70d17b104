package relay

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/prixcenter/wlink/config"
	"github.com/prixcenter/wlink/internal/domain"
	"github.com/prixcenter/wlink/internal/ghl"
	"github.com/prixcenter/wlink/internal/store"
	"github.com/prixcenter/wlink/pkg/common"
)

// fakeGateway records send attempts and serves canned avatar lookups.
type fakeGateway struct {
	sendNumbers []string
	sendTexts   []string
	failNumbers map[string]bool
	avatar      string
	avatarErr   error
}

func (g *fakeGateway) SendText(_ context.Context, _, _, number, text string) error {
	g.sendNumbers = append(g.sendNumbers, number)
	g.sendTexts = append(g.sendTexts, text)
	if g.failNumbers[number] {
		return fmt.Errorf("send rejected for %s", number)
	}
	return nil
}

func (g *fakeGateway) ProfilePicture(_ context.Context, _, _, _ string) (string, error) {
	return g.avatar, g.avatarErr
}

type statusUpdate struct {
	MessageID string
	Status    string
	ErrMsg    string
}

// fakePlatform implements the Platform slice against in-memory maps.
type fakePlatform struct {
	contactsByPhone map[string]*ghl.Contact
	contactsByID    map[string]*ghl.Contact
	created         []ghl.ContactCreate
	updated         []ghl.ContactUpdate
	users           []ghl.User
	usersErr        error
	posts           []ghl.MessagePost
	postErr         error
	convErr         error
	convCalls       int
	statusUpdates   []statusUpdate
	nextContactID   int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		contactsByPhone: map[string]*ghl.Contact{},
		contactsByID:    map[string]*ghl.Contact{},
	}
}

func (p *fakePlatform) addContact(c *ghl.Contact) {
	p.contactsByPhone[common.NormalizeDigits(c.Phone)] = c
	p.contactsByID[c.ID] = c
}

func (p *fakePlatform) FindContactByPhone(_ context.Context, _, phone string) (*ghl.Contact, error) {
	if c, ok := p.contactsByPhone[common.NormalizeDigits(phone)]; ok {
		return c, nil
	}
	return nil, nil
}

func (p *fakePlatform) GetContact(_ context.Context, _, contactID string) (*ghl.Contact, error) {
	if c, ok := p.contactsByID[contactID]; ok {
		return c, nil
	}
	return nil, domain.NewNotFound("contact", contactID)
}

func (p *fakePlatform) CreateContact(_ context.Context, locationID string, in ghl.ContactCreate) (*ghl.Contact, error) {
	p.created = append(p.created, in)
	p.nextContactID++
	c := &ghl.Contact{
		ID:         fmt.Sprintf("contact-%d", p.nextContactID),
		Name:       in.Name,
		LocationID: locationID,
		Phone:      common.NormalizeE164(in.Phone),
		AvatarURL:  in.AvatarURL,
		Tags:       in.Tags,
	}
	p.addContact(c)
	return c, nil
}

func (p *fakePlatform) UpdateContact(_ context.Context, _, contactID string, in ghl.ContactUpdate) error {
	p.updated = append(p.updated, in)
	return nil
}

func (p *fakePlatform) FindOrCreateConversation(_ context.Context, _, contactID string) (string, error) {
	p.convCalls++
	if p.convErr != nil {
		return "", p.convErr
	}
	return "conv-" + contactID, nil
}

func (p *fakePlatform) FindUserByPhone(_ context.Context, _, phone string) (*ghl.User, error) {
	if p.usersErr != nil {
		return nil, p.usersErr
	}
	for _, u := range p.users {
		if common.PhoneSuffixMatch(u.Phone, phone) {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

func (p *fakePlatform) PostMessage(_ context.Context, _ string, msg ghl.MessagePost) error {
	if p.postErr != nil {
		return p.postErr
	}
	p.posts = append(p.posts, msg)
	return nil
}

func (p *fakePlatform) UpdateMessageStatus(_ context.Context, _, messageID, status, errMsg string) error {
	p.statusUpdates = append(p.statusUpdates, statusUpdate{messageID, status, errMsg})
	return nil
}

var testUserIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{15,}$`)

func (p *fakePlatform) IsValidUserID(userID, locationID string) bool {
	return testUserIDPattern.MatchString(userID) && userID != locationID
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *fakeGateway, *fakePlatform) {
	t.Helper()
	st := store.NewMemoryStore()
	gw := &fakeGateway{failNumbers: map[string]bool{}}
	platform := newFakePlatform()
	cfg := &config.AppConfig{}
	cfg.Platform.ConversationProviderID = "prov-1"
	return NewService(st, gw, platform, cfg), st, gw, platform
}

func seedInstance(t *testing.T, st *store.MemoryStore, state string) *domain.Instance {
	t.Helper()
	inst := &domain.Instance{
		ID:         1,
		Name:       "bot1",
		GatewayID:  "guid-1",
		APIToken:   "secret",
		State:      state,
		LocationID: "loc1",
		Settings:   domain.Settings{},
	}
	if err := st.CreateInstance(context.Background(), inst); err != nil {
		t.Fatalf("seed instance: %v", err)
	}
	return inst
}
