// Package schemekit provides a scheme and project-role based authorization
// engine for issue-tracking systems.
//
// SchemeKit decides, for a given user, project and capability, whether access
// is granted, and propagates default role memberships onto newly created
// projects. It models authorization the way large trackers do: named schemes
// bundle capability grants, and project roles carry per-project member sets.
//
// # Core Concepts
//
// Scheme: a named, typed bundle of capability bindings ("permission",
// "notification", "issuesecurity", ... — families are open strings, not an
// enum). A scheme is associated with zero or more projects; an unassociated
// scheme is inert.
//
// SchemeEntity: one binding row inside a scheme: "actor reference of kind T
// with parameter P may exercise capability C". Actor kinds are open strings
// too ("group", "reporter", "projectrole", or anything registered).
//
// ProjectRole: a globally defined named role (e.g. "Developers") whose actual
// membership is project-scoped.
//
// RoleActor: an immutable membership-test object (a user actor, a group actor
// backed by a directory, or a custom kind) bound to a project role either as a
// default template or for a concrete project.
//
// # Basic Usage
//
//	// 1. Wire the directory and the actor-type registry (at startup)
//	directory := myDirectoryAdapter{} // schemekit.Directory implementation
//	registry := schemekit.NewDefaultRegistry(directory)
//
//	// 2. Create the service
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := schemekit.NewService(registry, directory, db)
//
//	// 3. Run migrations
//	db.Migrate(ctx, schemekit.NewMigrationService(service).Migrations())
//
//	// 4. Define schemes and roles
//	permissions := service.Schemes(schemekit.SchemeTypePermission)
//	scheme := &schemekit.Scheme{Name: "Default Permission Scheme"}
//	permissions.CreateScheme(ctx, scheme)
//	permissions.CreateSchemeEntity(ctx, scheme.ID, schemekit.SchemeEntity{
//	    Type:         schemekit.ActorTypeGroup,
//	    Parameter:    schemekit.String("jira-admins"),
//	    EntityTypeID: schemekit.String("10"),
//	})
//	permissions.AssociateWithProject(ctx, projectID, scheme.ID)
//
//	// 5. Check authority (request hot path)
//	ok, err := permissions.HasSchemeAuthority(ctx, "10",
//	    schemekit.ProjectSubject(projectID), "fred", false)
//
//	// 6. Project roles
//	roles := service.ProjectRoles()
//	roles.ApplyDefaultRolesToProject(ctx, newProjectID)
//	ok, err = roles.IsUserInProjectRole(ctx, "fred", testersRoleID, projectID)
//
// # Resolution Model
//
// An authority check is a disjunction: access is granted if ANY matching
// scheme entity resolves to an actor containing the user. There are no deny
// rows; absence of a grant is the only form of denial, and denial is always a
// false return, never an error.
//
// Actor kinds are resolved through a Registry mapping the kind string to a
// grant resolver and, for persisted membership kinds, a RoleActorFactory.
// New kinds plug in without touching the managers.
//
// # Immutability
//
// RoleActor, DefaultRoleActors and ProjectRoleActors are immutable after
// construction. Set updates go through AddRoleActor/RemoveRoleActor, which
// return new instances. This keeps read paths lock-free: callers may cache
// resolved sets and publish replacements with a single pointer swap.
//
// # Middleware Usage
//
//	mw := schemekit.NewMiddleware(service)
//	protected := mw.RequireAuthority(schemekit.SchemeTypePermission, "10",
//	    schemekit.ProjectFromParam("projectID"))(handler)
package schemekit
