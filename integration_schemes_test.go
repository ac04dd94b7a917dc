package schemekit

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

// TestSchemeLifecycleDatabase tests scheme CRUD with real database
func TestSchemeLifecycleDatabase(t *testing.T) {
	helper := NewTestDataHelper(t)
	if helper == nil {
		return
	}
	defer helper.CleanupTestData()

	service := helper.GetService()
	ctx := helper.GetContext()
	permissions := service.Schemes(SchemeTypePermission)

	t.Run("Create and retrieve scheme with entities", func(t *testing.T) {
		scheme := &Scheme{
			Name:        "lifecycle-" + strconv.FormatInt(NextTestID(), 10),
			Description: "lifecycle test scheme",
			Entities: []SchemeEntity{
				{Type: ActorTypeGroup, Parameter: String("jira-admins")},
				{Type: ActorTypeGroup, Parameter: String("qa-team"), EntityTypeID: String("EDIT_ISSUES")},
			},
		}
		if err := permissions.CreateScheme(ctx, scheme); err != nil {
			t.Fatalf("CreateScheme should succeed: %v", err)
		}
		if scheme.ID == 0 {
			t.Error("Created scheme should have an id")
		}

		loaded, err := permissions.GetScheme(ctx, scheme.ID)
		if err != nil {
			t.Fatalf("GetScheme should succeed: %v", err)
		}
		if loaded == nil {
			t.Fatal("Created scheme should be retrievable")
		}
		if loaded.Type != SchemeTypePermission {
			t.Errorf("Scheme type should be set by the manager, got %q", loaded.Type)
		}
		if len(loaded.Entities) != 2 {
			t.Errorf("Expected 2 entities, got %d", len(loaded.Entities))
		}

		byName, err := permissions.GetSchemeByName(ctx, scheme.Name)
		if err != nil {
			t.Fatalf("GetSchemeByName should succeed: %v", err)
		}
		if byName == nil || byName.ID != scheme.ID {
			t.Error("GetSchemeByName should find the created scheme")
		}
	})

	t.Run("Unknown scheme returns nil without error", func(t *testing.T) {
		scheme, err := permissions.GetScheme(ctx, NextTestID())
		if err != nil {
			t.Errorf("Missing scheme should not be an error: %v", err)
		}
		if scheme != nil {
			t.Error("Missing scheme should be nil")
		}
	})

	t.Run("Duplicate name within a family is rejected", func(t *testing.T) {
		scheme := helper.CreateTestScheme(SchemeTypePermission, "dup")

		err := permissions.CreateScheme(ctx, &Scheme{Name: scheme.Name})
		if !errors.Is(err, ErrSchemeExists) {
			t.Errorf("Expected ErrSchemeExists, got %v", err)
		}
	})

	t.Run("Same name in another family is allowed", func(t *testing.T) {
		scheme := helper.CreateTestScheme(SchemeTypePermission, "crossfamily")

		notifications := service.Schemes(SchemeTypeNotification)
		if err := notifications.CreateScheme(ctx, &Scheme{Name: scheme.Name}); err != nil {
			t.Errorf("Same name in another family should be allowed: %v", err)
		}
	})

	t.Run("Update scheme", func(t *testing.T) {
		scheme := helper.CreateTestScheme(SchemeTypePermission, "update")
		scheme.Description = "updated description"
		if err := permissions.UpdateScheme(ctx, scheme); err != nil {
			t.Fatalf("UpdateScheme should succeed: %v", err)
		}

		loaded, err := permissions.GetScheme(ctx, scheme.ID)
		if err != nil || loaded == nil {
			t.Fatalf("Updated scheme should be retrievable: %v", err)
		}
		if loaded.Description != "updated description" {
			t.Errorf("Description should be updated, got %q", loaded.Description)
		}
	})

	t.Run("Delete scheme removes entities and associations", func(t *testing.T) {
		projectID := NextTestID()
		scheme := &Scheme{
			Name:     "delete-" + strconv.FormatInt(NextTestID(), 10),
			Entities: []SchemeEntity{{Type: ActorTypeGroup, Parameter: String("qa-team")}},
		}
		if err := permissions.CreateScheme(ctx, scheme); err != nil {
			t.Fatalf("CreateScheme should succeed: %v", err)
		}
		if err := permissions.AssociateWithProject(ctx, projectID, scheme.ID); err != nil {
			t.Fatalf("AssociateWithProject should succeed: %v", err)
		}

		if err := permissions.DeleteScheme(ctx, scheme.ID); err != nil {
			t.Fatalf("DeleteScheme should succeed: %v", err)
		}

		loaded, err := permissions.GetScheme(ctx, scheme.ID)
		if err != nil {
			t.Errorf("GetScheme after delete should not error: %v", err)
		}
		if loaded != nil {
			t.Error("Deleted scheme should be gone")
		}

		projects, err := permissions.GetProjectsForScheme(ctx, scheme.ID)
		if err != nil {
			t.Errorf("GetProjectsForScheme should succeed: %v", err)
		}
		if len(projects) != 0 {
			t.Error("Deleted scheme should have no associations left")
		}
	})
}

// TestSchemeEntitiesDatabase tests entity operations with real database
func TestSchemeEntitiesDatabase(t *testing.T) {
	helper := NewTestDataHelper(t)
	if helper == nil {
		return
	}
	defer helper.CleanupTestData()

	service := helper.GetService()
	ctx := helper.GetContext()
	permissions := service.Schemes(SchemeTypePermission)

	scheme := helper.CreateTestScheme(SchemeTypePermission, "entities")

	t.Run("Create entity", func(t *testing.T) {
		entity, err := permissions.CreateSchemeEntity(ctx, scheme.ID, SchemeEntity{
			Type:         ActorTypeGroup,
			Parameter:    String("qa-team"),
			EntityTypeID: String("EDIT_ISSUES"),
		})
		if err != nil {
			t.Fatalf("CreateSchemeEntity should succeed: %v", err)
		}
		if entity.ID == 0 || entity.SchemeID != scheme.ID {
			t.Error("Created entity should carry row identity")
		}
	})

	t.Run("Unknown actor kind is rejected", func(t *testing.T) {
		_, err := permissions.CreateSchemeEntity(ctx, scheme.ID, SchemeEntity{Type: "martian"})
		if !IsUnknownActorType(err) {
			t.Errorf("Expected unknown actor type error, got %v", err)
		}
	})

	t.Run("Duplicate entity rows are allowed", func(t *testing.T) {
		notifications := service.Schemes(SchemeTypeNotification)
		notif := helper.CreateTestScheme(SchemeTypeNotification, "templates")

		for _, templateID := range []int64{1, 2} {
			_, err := notifications.CreateSchemeEntity(ctx, notif.ID, SchemeEntity{
				Type:         ActorTypeGroup,
				Parameter:    String("qa-team"),
				EntityTypeID: String("EVENT_ISSUE_CREATED"),
				TemplateID:   Int64(templateID),
			})
			if err != nil {
				t.Fatalf("CreateSchemeEntity should succeed: %v", err)
			}
		}

		entities, err := notifications.GetEntities(ctx, notif.ID)
		if err != nil {
			t.Fatalf("GetEntities should succeed: %v", err)
		}
		if len(entities) != 2 {
			t.Errorf("Both template rows should survive, got %d", len(entities))
		}
	})

	t.Run("Filtered retrieval", func(t *testing.T) {
		entities, err := permissions.GetEntitiesFiltered(ctx, scheme.ID, EntityFilter{Type: ActorTypeGroup})
		if err != nil {
			t.Fatalf("GetEntitiesFiltered should succeed: %v", err)
		}
		for _, e := range entities {
			if e.Type != ActorTypeGroup {
				t.Errorf("Filter should only pass group entities, got %q", e.Type)
			}
		}
	})

	t.Run("Delete entity", func(t *testing.T) {
		entity, err := permissions.CreateSchemeEntity(ctx, scheme.ID, SchemeEntity{
			Type:      ActorTypeGroup,
			Parameter: String("jira-admins"),
		})
		if err != nil {
			t.Fatalf("CreateSchemeEntity should succeed: %v", err)
		}

		if err := permissions.DeleteEntity(ctx, entity.ID); err != nil {
			t.Fatalf("DeleteEntity should succeed: %v", err)
		}

		entities, err := permissions.GetEntities(ctx, scheme.ID)
		if err != nil {
			t.Fatalf("GetEntities should succeed: %v", err)
		}
		for _, e := range entities {
			if e.ID == entity.ID {
				t.Error("Deleted entity should be gone")
			}
		}
	})

	t.Run("RemoveEntities sweeps across all schemes", func(t *testing.T) {
		group := helper.CreateTestGroup("doomed", "alice")

		for _, prefix := range []string{"sweep-a", "sweep-b"} {
			s := helper.CreateTestScheme(SchemeTypePermission, prefix)
			if _, err := permissions.CreateSchemeEntity(ctx, s.ID, SchemeEntity{
				Type:      ActorTypeGroup,
				Parameter: String(group),
			}); err != nil {
				t.Fatalf("CreateSchemeEntity should succeed: %v", err)
			}
		}

		removed, err := service.RemoveEntities(ctx, ActorTypeGroup, group)
		if err != nil {
			t.Fatalf("RemoveEntities should succeed: %v", err)
		}
		if removed != 2 {
			t.Errorf("Expected 2 removed rows, got %d", removed)
		}
	})
}

// TestSchemeCopyDatabase tests scheme deep copies with real database
func TestSchemeCopyDatabase(t *testing.T) {
	helper := NewTestDataHelper(t)
	if helper == nil {
		return
	}
	defer helper.CleanupTestData()

	service := helper.GetService()
	ctx := helper.GetContext()
	permissions := service.Schemes(SchemeTypePermission)

	original := &Scheme{
		Name:        "copy-src-" + strconv.FormatInt(NextTestID(), 10),
		Description: "original",
		Entities: []SchemeEntity{
			{Type: ActorTypeGroup, Parameter: String("jira-admins")},
			{Type: ActorTypeReporter, EntityTypeID: String("EDIT_ISSUES")},
		},
	}
	if err := permissions.CreateScheme(ctx, original); err != nil {
		t.Fatalf("CreateScheme should succeed: %v", err)
	}
	if err := permissions.AssociateWithProject(ctx, NextTestID(), original.ID); err != nil {
		t.Fatalf("AssociateWithProject should succeed: %v", err)
	}

	t.Run("Copy is a structural clone", func(t *testing.T) {
		clone, err := permissions.CopyScheme(ctx, original)
		if err != nil {
			t.Fatalf("CopyScheme should succeed: %v", err)
		}
		if clone.ID == 0 || clone.ID == original.ID {
			t.Error("Copy should be a new persisted scheme")
		}
		if !strings.HasPrefix(clone.Name, "Copy of ") {
			t.Errorf("Copy name should start with 'Copy of ', got %q", clone.Name)
		}
		if !clone.ContainsSameEntities(original) {
			t.Error("Copy should contain the same entities as the original")
		}
	})

	t.Run("Copy starts unassociated", func(t *testing.T) {
		clone, err := permissions.GetSchemeByName(ctx, "Copy of "+original.Name)
		if err != nil || clone == nil {
			t.Fatalf("Copy should be retrievable: %v", err)
		}
		projects, err := permissions.GetProjectsForScheme(ctx, clone.ID)
		if err != nil {
			t.Fatalf("GetProjectsForScheme should succeed: %v", err)
		}
		if len(projects) != 0 {
			t.Error("Copy should not inherit project associations")
		}
	})

	t.Run("Second copy gets a numbered name", func(t *testing.T) {
		clone, err := permissions.CopyScheme(ctx, original)
		if err != nil {
			t.Fatalf("Second CopyScheme should succeed: %v", err)
		}
		if clone.Name != "Copy 2 of "+original.Name {
			t.Errorf("Expected 'Copy 2 of' name, got %q", clone.Name)
		}
	})
}

// TestSchemeAssociationsDatabase tests project bindings with real database
func TestSchemeAssociationsDatabase(t *testing.T) {
	helper := NewTestDataHelper(t)
	if helper == nil {
		return
	}
	defer helper.CleanupTestData()

	service := helper.GetService()
	ctx := helper.GetContext()
	permissions := service.Schemes(SchemeTypePermission)

	scheme := helper.CreateTestScheme(SchemeTypePermission, "assoc")
	projectID := NextTestID()

	t.Run("Associate and list", func(t *testing.T) {
		if err := permissions.AssociateWithProject(ctx, projectID, scheme.ID); err != nil {
			t.Fatalf("AssociateWithProject should succeed: %v", err)
		}

		schemes, err := permissions.GetSchemesForProject(ctx, projectID)
		if err != nil {
			t.Fatalf("GetSchemesForProject should succeed: %v", err)
		}
		if len(schemes) != 1 || schemes[0].ID != scheme.ID {
			t.Errorf("Project should resolve to the bound scheme, got %d schemes", len(schemes))
		}

		projects, err := permissions.GetProjectsForScheme(ctx, scheme.ID)
		if err != nil {
			t.Fatalf("GetProjectsForScheme should succeed: %v", err)
		}
		if len(projects) != 1 || projects[0] != projectID {
			t.Error("Scheme should resolve back to the bound project")
		}
	})

	t.Run("Re-associating is a no-op", func(t *testing.T) {
		if err := permissions.AssociateWithProject(ctx, projectID, scheme.ID); err != nil {
			t.Errorf("Re-association should be a no-op: %v", err)
		}

		projects, err := permissions.GetProjectsForScheme(ctx, scheme.ID)
		if err != nil {
			t.Fatalf("GetProjectsForScheme should succeed: %v", err)
		}
		if len(projects) != 1 {
			t.Errorf("Re-association should not duplicate rows, got %d", len(projects))
		}
	})

	t.Run("Associated and unassociated listings", func(t *testing.T) {
		loner := helper.CreateTestScheme(SchemeTypePermission, "loner")

		associated, err := permissions.GetAssociatedSchemes(ctx, true)
		if err != nil {
			t.Fatalf("GetAssociatedSchemes should succeed: %v", err)
		}
		if !containsSchemeID(associated, scheme.ID) {
			t.Error("Bound scheme should be listed as associated")
		}
		if containsSchemeID(associated, loner.ID) {
			t.Error("Unbound scheme should not be listed as associated")
		}

		unassociated, err := permissions.GetUnassociatedSchemes(ctx)
		if err != nil {
			t.Fatalf("GetUnassociatedSchemes should succeed: %v", err)
		}
		if !containsSchemeID(unassociated, loner.ID) {
			t.Error("Unbound scheme should be listed as unassociated")
		}
	})

	t.Run("Dissociate", func(t *testing.T) {
		if err := permissions.DissociateFromProject(ctx, projectID, scheme.ID); err != nil {
			t.Fatalf("DissociateFromProject should succeed: %v", err)
		}
		schemes, err := permissions.GetSchemesForProject(ctx, projectID)
		if err != nil {
			t.Fatalf("GetSchemesForProject should succeed: %v", err)
		}
		if len(schemes) != 0 {
			t.Error("Dissociated project should resolve to no schemes")
		}
	})
}

func containsSchemeID(schemes []Scheme, id int64) bool {
	for _, s := range schemes {
		if s.ID == id {
			return true
		}
	}
	return false
}

// TestSchemeAuthorityDatabase tests capability resolution with real database
func TestSchemeAuthorityDatabase(t *testing.T) {
	helper := NewTestDataHelper(t)
	if helper == nil {
		return
	}
	defer helper.CleanupTestData()

	service := helper.GetService()
	ctx := helper.GetContext()
	permissions := service.Schemes(SchemeTypePermission)

	projectID := NextTestID()
	scheme := &Scheme{
		Name: "authority-" + strconv.FormatInt(NextTestID(), 10),
		Entities: []SchemeEntity{
			// jira-admins hold every capability via the wildcard row
			{Type: ActorTypeGroup, Parameter: String("jira-admins")},
			{Type: ActorTypeGroup, Parameter: String("qa-team"), EntityTypeID: String("EDIT_ISSUES")},
			{Type: ActorTypeReporter, EntityTypeID: String("EDIT_ISSUES")},
		},
	}
	if err := permissions.CreateScheme(ctx, scheme); err != nil {
		t.Fatalf("CreateScheme should succeed: %v", err)
	}
	if err := permissions.AssociateWithProject(ctx, projectID, scheme.ID); err != nil {
		t.Fatalf("AssociateWithProject should succeed: %v", err)
	}

	subject := ProjectSubject(projectID)

	t.Run("Wildcard grants every capability", func(t *testing.T) {
		helper.AssertAuthorityGranted(SchemeTypePermission, "EDIT_ISSUES", subject, "fred")
		helper.AssertAuthorityGranted(SchemeTypePermission, "DELETE_ISSUES", subject, "fred")
	})

	t.Run("Group grant is capability-scoped", func(t *testing.T) {
		helper.AssertAuthorityGranted(SchemeTypePermission, "EDIT_ISSUES", subject, "alice")
		helper.AssertAuthorityDenied(SchemeTypePermission, "DELETE_ISSUES", subject, "alice")
	})

	t.Run("Outsider is denied", func(t *testing.T) {
		helper.AssertAuthorityDenied(SchemeTypePermission, "EDIT_ISSUES", subject, "carol")
	})

	t.Run("Reporter grant needs the issue", func(t *testing.T) {
		issue := Issue{ID: NextTestID(), ProjectID: projectID, Reporter: "carol"}

		helper.AssertAuthorityGranted(SchemeTypePermission, "EDIT_ISSUES", IssueSubject(issue), "carol")
		helper.AssertAuthorityDenied(SchemeTypePermission, "EDIT_ISSUES", IssueSubject(issue), "dave")
	})

	t.Run("Issue creation grants reporter rows to any authenticated user", func(t *testing.T) {
		granted, err := permissions.HasSchemeAuthority(ctx, "EDIT_ISSUES", subject, "dave", true)
		if err != nil {
			t.Fatalf("Authority check should succeed: %v", err)
		}
		if !granted {
			t.Error("Reporter row should grant during issue creation")
		}
	})

	t.Run("Anonymous is always denied", func(t *testing.T) {
		granted, err := permissions.HasSchemeAuthorityAnonymous(ctx, "EDIT_ISSUES", subject)
		if err != nil {
			t.Fatalf("Anonymous check should succeed: %v", err)
		}
		if granted {
			t.Error("Anonymous user should never be granted by the built-in kinds")
		}
	})

	t.Run("Project without schemes denies without error", func(t *testing.T) {
		helper.AssertAuthorityDenied(SchemeTypePermission, "EDIT_ISSUES", ProjectSubject(NextTestID()), "fred")
	})

	t.Run("Project role entity resolves through role membership", func(t *testing.T) {
		role := helper.CreateTestRole("authority-role")
		roles := service.ProjectRoles()
		if err := roles.AddActorToProjectRole(ctx, role.ID, projectID, ActorTypeUser, "dave"); err != nil {
			t.Fatalf("AddActorToProjectRole should succeed: %v", err)
		}

		if _, err := permissions.CreateSchemeEntity(ctx, scheme.ID, SchemeEntity{
			Type:         ActorTypeProjectRole,
			Parameter:    String(strconv.FormatInt(role.ID, 10)),
			EntityTypeID: String("ASSIGN_ISSUES"),
		}); err != nil {
			t.Fatalf("CreateSchemeEntity should succeed: %v", err)
		}

		helper.AssertAuthorityGranted(SchemeTypePermission, "ASSIGN_ISSUES", subject, "dave")
		helper.AssertAuthorityDenied(SchemeTypePermission, "ASSIGN_ISSUES", subject, "carol")
	})

	t.Run("Dangling group entity never aborts the check", func(t *testing.T) {
		if _, err := permissions.CreateSchemeEntity(ctx, scheme.ID, SchemeEntity{
			Type:         ActorTypeGroup,
			Parameter:    String("no-such-group"),
			EntityTypeID: String("EDIT_ISSUES"),
		}); err != nil {
			t.Fatalf("CreateSchemeEntity should succeed: %v", err)
		}

		helper.AssertAuthorityGranted(SchemeTypePermission, "EDIT_ISSUES", subject, "alice")
	})

	t.Run("Granting entities listing", func(t *testing.T) {
		entities, err := permissions.GetGrantingEntities(ctx, "EDIT_ISSUES", projectID)
		if err != nil {
			t.Fatalf("GetGrantingEntities should succeed: %v", err)
		}
		if len(entities) < 3 {
			t.Errorf("Wildcard, qa-team and reporter rows should all match, got %d", len(entities))
		}
	})

	t.Run("Authority checks are recorded", func(t *testing.T) {
		metrics := service.GetOperationMetrics()
		if metrics.TotalAuthorityChecks == 0 {
			t.Error("Authority checks should be counted")
		}
		if metrics.GrantedAuthorityChecks == 0 || metrics.DeniedAuthorityChecks == 0 {
			t.Error("Both granted and denied checks should be counted")
		}
	})
}
