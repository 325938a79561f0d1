package store

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// searchSortColumns whitelists caller-chosen sort columns.
var searchSortColumns = map[string]string{
	"created_at":  "tickets.created_at",
	"updated_at":  "tickets.updated_at",
	"due_date":    "tickets.due_date",
	"priority":    "tickets.priority",
	"status":      "tickets.status",
	"key":         "tickets.key",
	"title":       "tickets.title",
	"order_index": "tickets.order_index",
}

// TicketFilter defines the optional search predicate over one project's
// tickets. Zero values mean "no constraint".
type TicketFilter struct {
	Keyword    string
	Status     string
	Priority   string
	Type       string
	AssigneeID string
	ReporterID string
	Skip       int
	Limit      int
	SortBy     string
	SortOrder  string
}

// EffectiveLimit reports the page size Search applies after defaulting and
// capping, so callers can echo the real limit back.
func (f TicketFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return defaultSearchLimit
	}
	if f.Limit > maxSearchLimit {
		return maxSearchLimit
	}
	return f.Limit
}

// Search returns a page of tickets matching the filter plus the total count
// of matches. The count is computed over the exact same predicate as the
// page, independent of skip/limit.
func (s *TicketStore) Search(ctx context.Context, projectID string, filter TicketFilter) ([]Ticket, int, error) {
	where := []string{"tickets.project_id = $1"}
	args := []interface{}{strings.TrimSpace(projectID)}

	addArg := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		addArg("(tickets.title ILIKE $%d OR tickets.description ILIKE $%[1]d OR tickets.key ILIKE $%[1]d)",
			"%"+keyword+"%")
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		if !isValidTicketStatus(status) {
			return nil, 0, validationErrorf("invalid status %q", status)
		}
		addArg("tickets.status = $%d", status)
	}
	if priority := strings.TrimSpace(filter.Priority); priority != "" {
		if !isValidPriority(priority) {
			return nil, 0, validationErrorf("invalid priority %q", priority)
		}
		addArg("tickets.priority = $%d", priority)
	}
	if ticketType := strings.TrimSpace(filter.Type); ticketType != "" {
		if !isValidTicketType(ticketType) {
			return nil, 0, validationErrorf("invalid ticket type %q", ticketType)
		}
		addArg("tickets.type = $%d", ticketType)
	}
	if assigneeID := strings.TrimSpace(filter.AssigneeID); assigneeID != "" {
		if !uuidRegex.MatchString(assigneeID) {
			return nil, 0, validationErrorf("invalid assignee_id")
		}
		addArg("tickets.assignee_id = $%d", assigneeID)
	}
	if reporterID := strings.TrimSpace(filter.ReporterID); reporterID != "" {
		if !uuidRegex.MatchString(reporterID) {
			return nil, 0, validationErrorf("invalid reporter_id")
		}
		addArg("tickets.reporter_id = $%d", reporterID)
	}

	predicate := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tickets WHERE "+predicate, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tickets: %w", err)
	}

	sortColumn, ok := searchSortColumns[strings.TrimSpace(filter.SortBy)]
	if filter.SortBy == "" {
		sortColumn = "tickets.created_at"
	} else if !ok {
		return nil, 0, validationErrorf("cannot sort by %q", filter.SortBy)
	}

	direction := "DESC"
	switch strings.ToLower(strings.TrimSpace(filter.SortOrder)) {
	case "", "desc":
	case "asc":
		direction = "ASC"
	default:
		return nil, 0, validationErrorf("sort order must be asc or desc")
	}

	limit := filter.EffectiveLimit()
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	args = append(args, limit, skip)
	query := fmt.Sprintf(`
		SELECT %s, reporter.username, assignee.username
		FROM tickets
		JOIN users reporter ON reporter.id = tickets.reporter_id
		LEFT JOIN users assignee ON assignee.id = tickets.assignee_id
		WHERE %s
		ORDER BY %s %s, tickets.id
		LIMIT $%d OFFSET $%d`,
		ticketSelectColumns, predicate, sortColumn, direction, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]Ticket, 0)
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(
			&t.ID, &t.Key, &t.ProjectID, &t.Type, &t.Status, &t.Priority, &t.Resolution,
			&t.Title, &t.Description, &t.ReporterID, &t.AssigneeID, &t.DueDate,
			&t.ResolvedAt, &t.OrderIndex, &t.CreatedAt, &t.UpdatedAt,
			&t.ReporterUsername, &t.AssigneeUsername,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error reading tickets: %w", err)
	}

	return tickets, total, nil
}
