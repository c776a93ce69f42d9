package pg

import (
	"context"
	"time"

	"leadline.io/internal/crm"
)

func (s *Store) Stats(ctx context.Context, ownerScope string, activitySince time.Time) (crm.Stats, error) {
	stats := crm.Stats{LeadsByStatus: make(map[crm.LeadStatus]int)}

	leadWhere := ""
	leadArgs := []any{}
	if ownerScope != "" {
		leadWhere = " where owner_id = $1"
		leadArgs = append(leadArgs, ownerScope)
	}

	rows, err := s.db.QueryContext(ctx,
		`select status, count(*), coalesce(sum(value), 0) from leads`+leadWhere+` group by status`,
		leadArgs...)
	if err != nil {
		return crm.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status crm.LeadStatus
			count  int
			value  int64
		)
		if err := rows.Scan(&status, &count, &value); err != nil {
			return crm.Stats{}, err
		}
		stats.LeadsByStatus[status] = count
		stats.TotalLeads += count
		stats.TotalValue += value
	}
	if err := rows.Err(); err != nil {
		return crm.Stats{}, err
	}

	actQuery := `select count(*) from activities where created_at >= $1`
	actArgs := []any{activitySince}
	if ownerScope != "" {
		actQuery += ` and user_id = $2`
		actArgs = append(actArgs, ownerScope)
	}
	if err := s.db.QueryRowContext(ctx, actQuery, actArgs...).Scan(&stats.RecentActivities); err != nil {
		return crm.Stats{}, err
	}

	if ownerScope == "" {
		ownerRows, err := s.db.QueryContext(ctx, `
			select coalesce(l.owner_id, ''), coalesce(u.name, 'Unassigned'), count(*)
			from leads l
			left join users u on u.id = l.owner_id
			group by l.owner_id, u.name
			order by coalesce(l.owner_id, '')
		`)
		if err != nil {
			return crm.Stats{}, err
		}
		defer ownerRows.Close()
		for ownerRows.Next() {
			var oc crm.OwnerCount
			if err := ownerRows.Scan(&oc.OwnerID, &oc.OwnerName, &oc.Count); err != nil {
				return crm.Stats{}, err
			}
			stats.LeadsByOwner = append(stats.LeadsByOwner, oc)
		}
		if err := ownerRows.Err(); err != nil {
			return crm.Stats{}, err
		}
	}
	return stats, nil
}
