package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmynk/splitledger/internal/activity"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/realtime"
	"github.com/mmynk/splitledger/internal/storage"
)

// GroupService handles group creation and membership. Joining a group links
// every new member pair in the ledger (zeroed rows in the group scope and
// the aggregate scope) so balances exist before the first expense.
type GroupService struct {
	store    storage.Store
	ledger   *ledger.Ledger
	emitter  *activity.Emitter
	registry *realtime.Registry

	// defaultCurrency seeds zeroed link rows before any expense names one.
	defaultCurrency string
}

// NewGroupService creates a GroupService.
func NewGroupService(store storage.Store, ldgr *ledger.Ledger, emitter *activity.Emitter, registry *realtime.Registry, defaultCurrency string) *GroupService {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &GroupService{store: store, ledger: ldgr, emitter: emitter, registry: registry, defaultCurrency: defaultCurrency}
}

// Create persists a new group and links all member pairs.
func (s *GroupService) Create(ctx context.Context, actorID, name string, members []string) (*models.Group, error) {
	group := &models.Group{
		Name:      name,
		Members:   members,
		CreatedBy: actorID,
	}
	if !group.HasMember(actorID) {
		group.Members = append(group.Members, actorID)
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	if err := s.linkPairs(ctx, group.ID, group.Members, nil); err != nil {
		return nil, err
	}

	slog.Info("Group created", "group_id", group.ID, "name", group.Name, "members", len(group.Members))

	// Members aren't on the group channel yet; tell their personal streams.
	notify(s.registry, realtime.TypeGroupJoined,
		map[string]string{"group_id": group.ID, "name": group.Name},
		actorID, models.ScopeAggregate, group.Members)
	return group, nil
}

// Get retrieves a group by ID.
func (s *GroupService) Get(ctx context.Context, groupID string) (*models.Group, error) {
	return s.store.GetGroup(ctx, groupID)
}

// AddMembers adds users to a group, linking each newcomer with every
// existing member.
func (s *GroupService) AddMembers(ctx context.Context, actorID, groupID string, members []string) (*models.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	var newcomers []string
	for _, member := range members {
		if !group.HasMember(member) {
			newcomers = append(newcomers, member)
		}
	}
	if len(newcomers) == 0 {
		return group, nil
	}

	if err := s.store.AddGroupMembers(ctx, groupID, newcomers); err != nil {
		return nil, fmt.Errorf("add group members: %w", err)
	}
	if err := s.linkPairs(ctx, groupID, newcomers, group.Members); err != nil {
		return nil, err
	}
	group.Members = append(group.Members, newcomers...)

	slog.Info("Group members added", "group_id", groupID, "new_members", newcomers)

	for _, member := range newcomers {
		if err := s.emitter.Record(ctx, groupID, actorID, models.ActivityMemberJoined, member,
			fmt.Sprintf("%s joined the group", member)); err != nil {
			slog.Warn("Activity append failed", "type", models.ActivityMemberJoined, "group_id", groupID, "error", err)
		}
		notify(s.registry, realtime.TypeMemberJoined,
			map[string]string{"group_id": groupID, "user_id": member},
			actorID, groupID, nil)
	}
	return group, nil
}

// linkPairs creates zeroed ledger rows for each newcomer against everyone
// else, in the group scope and the aggregate scope.
func (s *GroupService) linkPairs(ctx context.Context, groupID string, newcomers, existing []string) error {
	link := func(a, b string) error {
		if a == b {
			return nil
		}
		if err := s.ledger.Link(ctx, a, b, groupID, s.defaultCurrency); err != nil {
			return fmt.Errorf("link %s/%s: %w", a, b, err)
		}
		if err := s.ledger.Link(ctx, a, b, models.ScopeAggregate, s.defaultCurrency); err != nil {
			return fmt.Errorf("link %s/%s: %w", a, b, err)
		}
		return nil
	}

	for i, a := range newcomers {
		for _, b := range newcomers[i+1:] {
			if err := link(a, b); err != nil {
				return err
			}
		}
		for _, b := range existing {
			if err := link(a, b); err != nil {
				return err
			}
		}
	}
	return nil
}
