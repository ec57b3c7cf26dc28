package segment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/repository/memory"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/segment"
)

func seedStore() *memory.Store {
	st := memory.NewStore()
	st.PutContact(domain.Contact{ID: "c1", City: "Milano", Tags: []string{"vip"}, LeadScore: 80})
	st.PutContact(domain.Contact{ID: "c2", City: "Milano", Tags: []string{"investor"}, LeadScore: 40})
	st.PutContact(domain.Contact{ID: "c3", City: "Roma", Tags: []string{"vip"}, LeadScore: 90})
	st.PutSegment(domain.Segment{
		ID:   "seg-milano",
		Name: "Milano leads",
		Criteria: []domain.Criterion{
			{Field: "city", Operator: domain.OpEq, Value: "Milano"},
			{Field: "tags", Operator: "overlaps", Value: "vip"},
		},
	})
	return st
}

func memberIDs(cs []domain.Contact) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestRefreshReplacesMembership(t *testing.T) {
	st := seedStore()
	svc := segment.NewService(st.Segments())
	ctx := context.Background()

	res, err := svc.Refresh(ctx, "seg-milano")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ContactCount)
	assert.Equal(t, 1, res.Skipped, "unknown operator is skipped, not fatal")

	members, err := svc.Members(ctx, "seg-milano")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, memberIDs(members))

	seg, err := svc.Get(ctx, "seg-milano")
	require.NoError(t, err)
	assert.Equal(t, 2, seg.ContactCount)
	require.NotNil(t, seg.LastRefreshedAt)
	assert.WithinDuration(t, time.Now(), *seg.LastRefreshedAt, time.Minute)

	st.PutContact(domain.Contact{ID: "c2", City: "Torino"})
	res, err = svc.Refresh(ctx, "seg-milano")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ContactCount)
	members, err = svc.Members(ctx, "seg-milano")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, memberIDs(members))
}

func TestRefreshUnknownSegment(t *testing.T) {
	svc := segment.NewService(memory.NewStore().Segments())
	_, err := svc.Refresh(context.Background(), "missing")
	assert.True(t, errors.Is(err, segment.ErrNotFound))
}

func TestRefreshAtomicUnderConcurrentReaders(t *testing.T) {
	st := memory.NewStore()
	for i := 0; i < 50; i++ {
		st.PutContact(domain.Contact{ID: fmt.Sprintf("c%02d", i), LeadScore: i})
	}
	st.PutSegment(domain.Segment{
		ID:       "seg",
		Criteria: []domain.Criterion{{Field: "lead_score", Operator: domain.OpGte, Value: 10}},
	})
	svc := segment.NewService(st.Segments())
	ctx := context.Background()
	_, err := svc.Refresh(ctx, "seg")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		emptySeen atomic.Bool
		stop      = make(chan struct{})
	)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				members, err := svc.Members(ctx, "seg")
				if err == nil && len(members) == 0 {
					emptySeen.Store(true)
				}
			}
		}()
	}

	var writers sync.WaitGroup
	for w := 0; w < 4; w++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for i := 0; i < 25; i++ {
				_, err := svc.Refresh(ctx, "seg")
				assert.NoError(t, err)
			}
		}()
	}
	writers.Wait()
	close(stop)
	wg.Wait()

	assert.False(t, emptySeen.Load(), "a reader observed an empty membership mid-refresh")
	members, err := svc.Members(ctx, "seg")
	require.NoError(t, err)
	assert.Len(t, members, 40)
}
