package schemekit

import (
	"net/http"
	"strconv"
)

// Middleware provides HTTP middleware for capability and role-membership
// checking.
type Middleware struct {
	service      *Service
	getUserID    func(*http.Request) string
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := schemekit.NewMiddleware(service,
//	    schemekit.WithUserIDExtractor(func(r *http.Request) string {
//	        return r.Context().Value("user_id").(string)
//	    }),
//	)
func NewMiddleware(service *Service, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:      service,
		getUserID:    defaultGetUserID,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithUserIDExtractor sets a custom function to extract user ID from request.
func WithUserIDExtractor(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.getUserID = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

func defaultGetUserID(r *http.Request) string {
	return GetUserID(r.Context())
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if IsUnauthorized(err) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if IsNilArgument(err) || IsInvalidArgument(err) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// ProjectExtractor extracts the target project id from an HTTP request.
type ProjectExtractor func(*http.Request) (int64, error)

// ProjectFromParam creates a ProjectExtractor that reads the project id from
// a URL path parameter. Compatible with chi, gorilla/mux, and standard
// library patterns.
//
// Example:
//
//	// For route /projects/{projectID}/issues
//	mw.RequireProjectRole(developersRoleID, schemekit.ProjectFromParam("projectID"))
func ProjectFromParam(paramName string) ProjectExtractor {
	return func(r *http.Request) (int64, error) {
		raw := r.PathValue(paramName)
		if raw == "" {
			// Try context (set by router middleware)
			if v := r.Context().Value(paramName); v != nil {
				if s, ok := v.(string); ok {
					raw = s
				}
			}
		}
		if raw == "" {
			return 0, NewError(ErrNilArgument, "project id not found in request")
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, NewError(ErrInvalidArgument, "project id is not numeric")
		}
		return id, nil
	}
}

// ProjectFromQuery creates a ProjectExtractor that reads the project id from
// a query parameter.
//
// Example:
//
//	// For route /api/issues?project_id=10010
//	mw.RequireAuthority("permission", "BROWSE", schemekit.ProjectFromQuery("project_id"))
func ProjectFromQuery(queryParam string) ProjectExtractor {
	return func(r *http.Request) (int64, error) {
		raw := r.URL.Query().Get(queryParam)
		if raw == "" {
			return 0, NewError(ErrNilArgument, "project id not found in query")
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, NewError(ErrInvalidArgument, "project id is not numeric")
		}
		return id, nil
	}
}

// ProjectFromHeader creates a ProjectExtractor that reads the project id
// from a header.
//
// Example:
//
//	// For header X-Project-ID: 10010
//	mw.RequireProjectRole(adminsRoleID, schemekit.ProjectFromHeader("X-Project-ID"))
func ProjectFromHeader(headerName string) ProjectExtractor {
	return func(r *http.Request) (int64, error) {
		raw := r.Header.Get(headerName)
		if raw == "" {
			return 0, NewError(ErrNilArgument, "project id not found in header")
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, NewError(ErrInvalidArgument, "project id is not numeric")
		}
		return id, nil
	}
}

// StaticProject creates a ProjectExtractor that always returns the same
// project. Useful for single-project deployments.
func StaticProject(projectID int64) ProjectExtractor {
	return func(r *http.Request) (int64, error) {
		return projectID, nil
	}
}

// RequireAuthority creates middleware that requires a scheme capability in
// the request's project. The capability is evaluated against the named
// scheme family ("permission", "issuesecurity", ...).
//
// Example:
//
//	router.With(mw.RequireAuthority(schemekit.SchemeTypePermission, "EDIT_ISSUES",
//	    schemekit.ProjectFromParam("projectID"))).
//	    Put("/projects/{projectID}/issues/{issueID}", editIssueHandler)
func (m *Middleware) RequireAuthority(schemeType, capability string, extractor ProjectExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				m.errorHandler(w, r, ErrNoUserID)
				return
			}

			projectID, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			granted, err := m.service.Schemes(schemeType).
				HasSchemeAuthority(ctx, capability, ProjectSubject(projectID), userID, false)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}
			if !granted {
				m.errorHandler(w, r, NewError(ErrUnauthorized, "missing required authority").
					WithScheme(schemeType, 0).
					WithProject(projectID).
					WithUser(userID))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireProjectRole creates middleware that requires role membership in the
// request's project.
//
// Example:
//
//	router.With(mw.RequireProjectRole(adminsRoleID, schemekit.ProjectFromParam("projectID"))).
//	    Post("/projects/{projectID}/settings", updateSettingsHandler)
func (m *Middleware) RequireProjectRole(roleID int64, extractor ProjectExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				m.errorHandler(w, r, ErrNoUserID)
				return
			}

			projectID, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			inRole, err := m.service.ProjectRoles().IsUserInProjectRole(ctx, userID, roleID, projectID)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}
			if !inRole {
				m.errorHandler(w, r, NewError(ErrUnauthorized, "missing required role").
					WithRole(roleID).
					WithProject(projectID).
					WithUser(userID))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyProjectRole creates middleware that requires membership in any
// of the given roles in the request's project.
func (m *Middleware) RequireAnyProjectRole(roleIDs []int64, extractor ProjectExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				m.errorHandler(w, r, ErrNoUserID)
				return
			}

			projectID, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			for _, roleID := range roleIDs {
				inRole, err := m.service.ProjectRoles().IsUserInProjectRole(ctx, userID, roleID, projectID)
				if err != nil {
					m.errorHandler(w, r, err)
					return
				}
				if inRole {
					next.ServeHTTP(w, r)
					return
				}
			}

			m.errorHandler(w, r, NewError(ErrUnauthorized, "missing required role").
				WithProject(projectID).
				WithUser(userID))
		})
	}
}

// LoadChecker creates middleware that loads the user's Checker into context.
// Use this when you want to do membership checks in the handler rather than
// middleware.
//
// Example:
//
//	router.With(mw.LoadChecker()).Get("/dashboard", dashboardHandler)
//
//	func dashboardHandler(w http.ResponseWriter, r *http.Request) {
//	    checker := schemekit.FromContext(r.Context())
//	    if checker.IsInRole(adminsRoleID, projectID) {
//	        // Show admin features
//	    }
//	}
func (m *Middleware) LoadChecker() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				// No user, continue without checker
				next.ServeHTTP(w, r)
				return
			}

			checker, err := m.service.ProjectRoles().GetChecker(ctx, userID)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx = WithChecker(ctx, checker)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InjectAuditContext creates middleware that extracts audit information from
// the request and adds it to the context for use in role-actor changes.
//
// Example:
//
//	router.Use(mw.InjectAuditContext())
func (m *Middleware) InjectAuditContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.Header.Get("X-Real-IP")
			}
			if ip == "" {
				ip = r.RemoteAddr
			}
			ctx = WithIPAddress(ctx, ip)

			ctx = WithUserAgent(ctx, r.UserAgent())

			requestID := r.Header.Get("X-Request-ID")
			if requestID != "" {
				ctx = WithRequestID(ctx, requestID)
			}

			userID := m.getUserID(r)
			if userID != "" {
				ctx = WithActorID(ctx, userID)
				ctx = WithUserID(ctx, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
