package service

import (
	"math/rand"
	"testing"

	"toeic_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func single(id uint, b *float64, topic string) model.Question {
	q := model.Question{Part: 5, Difficulty: b, Topic: topic}
	q.ID = id
	return q
}

func TestComputeQuotas(t *testing.T) {
	tests := []struct {
		n    int
		want Quotas
	}{
		{0, Quotas{}},
		{10, Quotas{Missed: 2, Easy: 2, Balanced: 4, Challenging: 2}},
		{3, Quotas{Missed: 0, Easy: 1, Balanced: 1, Challenging: 1}},
		{7, Quotas{Missed: 1, Easy: 2, Balanced: 3, Challenging: 1}},
		{1, Quotas{Balanced: 1}},
	}
	for _, tt := range tests {
		got := ComputeQuotas(tt.n)
		assert.Equal(t, tt.want, got, "n=%d", tt.n)
		assert.Equal(t, tt.n, got.Missed+got.Easy+got.Balanced+got.Challenging)
	}
}

func TestBuildUnitsGroupsChildren(t *testing.T) {
	parent := model.Question{Part: 3, IsGroup: true}
	parent.ID = 10
	pid := uint(10)
	c1 := model.Question{Part: 3, ParentID: &pid, Difficulty: ptr(0.2)}
	c1.ID = 11
	c2 := model.Question{Part: 3, ParentID: &pid, Difficulty: ptr(0.6)}
	c2.ID = 12
	c3 := model.Question{Part: 3, ParentID: &pid}
	c3.ID = 13
	empty := model.Question{Part: 3, IsGroup: true}
	empty.ID = 20

	units := BuildUnits([]model.Question{parent, c1, c2, c3, empty})
	require.Len(t, units, 1)
	u := units[0]
	assert.Equal(t, []uint{10, 11, 12, 13}, u.QuestionIDs)
	assert.Equal(t, 3, u.Size())
	require.NotNil(t, u.Difficulty)
	assert.InDelta(t, 0.4, *u.Difficulty, 1e-9)
}

func TestSelectPracticeBands(t *testing.T) {
	var qs []model.Question
	id := uint(1)
	// 每个难度区间各 5 题
	for _, b := range []float64{-1.0, 0.0, 1.0} {
		for i := 0; i < 5; i++ {
			qs = append(qs, single(id, ptr(b), ""))
			id++
		}
	}

	sel := SelectPractice(SelectorInput{
		Units:   BuildUnits(qs),
		Ability: 0,
		Count:   10,
		Rand:    rand.New(rand.NewSource(1)),
	})

	// 无错题时 missed 配额并入 balanced
	assert.Equal(t, 2, sel.Filled[BucketEasy])
	assert.Equal(t, 5, sel.Filled[BucketBalanced])
	assert.Equal(t, 2, sel.Filled[BucketChallenging])
	assert.Equal(t, 1, sel.Filled[BucketFallback])
	assert.Equal(t, 10, sel.Total())

	for _, u := range sel.Units {
		switch u.Bucket {
		case BucketEasy:
			assert.Equal(t, -1.0, *u.Unit.Difficulty)
		case BucketBalanced:
			assert.Equal(t, 0.0, *u.Unit.Difficulty)
		case BucketChallenging:
			assert.Equal(t, 1.0, *u.Unit.Difficulty)
		}
	}
}

func TestSelectPracticeMissedFirst(t *testing.T) {
	var qs []model.Question
	for i := uint(1); i <= 20; i++ {
		qs = append(qs, single(i, ptr(0), ""))
	}

	sel := SelectPractice(SelectorInput{
		Units:     BuildUnits(qs),
		Count:     10,
		MissedIDs: []uint{7, 3, 99, 5},
		// 最近作答不影响错题回顾
		Recent: map[uint]bool{7: true},
		Rand:   rand.New(rand.NewSource(2)),
	})

	require.GreaterOrEqual(t, len(sel.Units), 2)
	assert.Equal(t, BucketMissed, sel.Units[0].Bucket)
	assert.Equal(t, uint(7), sel.Units[0].Unit.ID)
	assert.Equal(t, uint(3), sel.Units[1].Unit.ID)
	assert.Equal(t, 2, sel.Filled[BucketMissed])
	assert.Equal(t, 10, sel.Total())
}

func TestSelectPracticeRanksByErrorProfile(t *testing.T) {
	qs := []model.Question{
		single(1, ptr(0.1), "Travel"),
		single(2, ptr(0.0), "Finance"),
		single(3, ptr(0.2), "Finance"),
		single(4, ptr(0.0), "Office"),
	}
	profile := NewErrorProfile([]model.UserError{
		{QuestionTags: model.QuestionTags{Topic: "finance"}},
		{QuestionTags: model.QuestionTags{Topic: "Finance "}},
	})
	assert.Equal(t, 2, profile.Topics["finance"])

	sel := SelectPractice(SelectorInput{
		Units:   BuildUnits(qs),
		Count:   1,
		Profile: profile,
		Rand:    rand.New(rand.NewSource(3)),
	})
	require.Len(t, sel.Units, 1)
	// 标签重合度相同，距能力值更近者优先
	assert.Equal(t, uint(2), sel.Units[0].Unit.ID)
}

func TestSelectPracticeExcludesRecentUntilFallback(t *testing.T) {
	qs := []model.Question{
		single(1, ptr(0), ""),
		single(2, ptr(0), ""),
		single(3, nil, ""),
	}
	sel := SelectPractice(SelectorInput{
		Units:  BuildUnits(qs),
		Count:  3,
		Recent: map[uint]bool{1: true},
		Rand:   rand.New(rand.NewSource(4)),
	})

	assert.Equal(t, 3, sel.Total())
	buckets := map[uint]string{}
	for _, u := range sel.Units {
		buckets[u.Unit.ID] = u.Bucket
	}
	assert.Equal(t, BucketBalanced, buckets[2])
	assert.Equal(t, BucketFallback, buckets[1])
	assert.Equal(t, BucketFallback, buckets[3])
}

func TestSelectPracticeKeepsGroupsWhole(t *testing.T) {
	var qs []model.Question
	pid := uint(100)
	parent := model.Question{Part: 7, IsGroup: true}
	parent.ID = pid
	qs = append(qs, parent)
	for i := uint(1); i <= 4; i++ {
		c := model.Question{Part: 7, ParentID: &pid, Difficulty: ptr(0)}
		c.ID = pid + i
		qs = append(qs, c)
	}

	sel := SelectPractice(SelectorInput{
		Units: BuildUnits(qs),
		Count: 2,
		Rand:  rand.New(rand.NewSource(5)),
	})

	require.Len(t, sel.Units, 1)
	assert.Equal(t, []uint{100, 101, 102, 103, 104}, sel.QuestionIDs())
	// 没有放得下的单元时整组补入
	assert.Equal(t, BucketFallback, sel.Units[0].Bucket)
	assert.Equal(t, 4, sel.Total())
}

// group 构造一个含 n 道小题、难度均为 b 的题组
func group(pid uint, n int, b float64) []model.Question {
	parent := model.Question{Part: 7, IsGroup: true}
	parent.ID = pid
	qs := []model.Question{parent}
	for i := 1; i <= n; i++ {
		c := model.Question{Part: 7, ParentID: &pid, Difficulty: ptr(b)}
		c.ID = pid + uint(i)
		qs = append(qs, c)
	}
	return qs
}

func TestSelectPracticeGroupedPartStaysNearCount(t *testing.T) {
	var qs []model.Question
	for i, b := range []float64{-1, 0, 0, 1, -1, 1, 0.1} {
		qs = append(qs, group(uint(100*(i+1)), 5, b)...)
	}

	sel := SelectPractice(SelectorInput{
		Units: BuildUnits(qs),
		Count: 10,
		Rand:  rand.New(rand.NewSource(6)),
	})
	assert.Equal(t, 10, sel.Total())
	assert.Len(t, sel.Units, 2)
	assert.Zero(t, sel.Filled[BucketEasy])
	assert.Zero(t, sel.Filled[BucketChallenging])
}

func TestSelectPracticeOvershootBounded(t *testing.T) {
	var qs []model.Question
	sizes := []int{2, 3, 4, 5, 3, 5, 2, 4}
	diffs := []float64{-1, 0, 1, 0.2, -0.8, 0.9, 0, -0.1}
	maxSize := 0
	for i, n := range sizes {
		qs = append(qs, group(uint(100*(i+1)), n, diffs[i])...)
		if n > maxSize {
			maxSize = n
		}
	}
	units := BuildUnits(qs)
	poolSize := 0
	for _, u := range units {
		poolSize += u.Size()
	}

	for count := 1; count <= 20; count++ {
		for seed := int64(0); seed < 5; seed++ {
			sel := SelectPractice(SelectorInput{
				Units:     units,
				Count:     count,
				MissedIDs: []uint{201, 601},
				Rand:      rand.New(rand.NewSource(seed)),
			})
			total := sel.Total()
			assert.LessOrEqual(t, total, count+maxSize-1, "count=%d seed=%d", count, seed)
			if count <= poolSize {
				assert.GreaterOrEqual(t, total, count, "count=%d seed=%d", count, seed)
			}
			q := sel.Quotas
			assert.LessOrEqual(t, sel.Filled[BucketMissed], q.Missed)
			assert.LessOrEqual(t, sel.Filled[BucketEasy], q.Easy)
			assert.LessOrEqual(t, sel.Filled[BucketChallenging], q.Challenging)
			assert.LessOrEqual(t, sel.Filled[BucketBalanced], q.Balanced+q.Missed)
		}
	}
}

func TestSelectPracticeSmallPool(t *testing.T) {
	qs := []model.Question{single(1, nil, ""), single(2, ptr(3), "")}
	sel := SelectPractice(SelectorInput{Units: BuildUnits(qs), Count: 10})
	assert.Equal(t, 2, sel.Total())
	assert.Len(t, sel.QuestionIDs(), 2)
}

func TestErrorProfileWeakTags(t *testing.T) {
	p := NewErrorProfile([]model.UserError{
		{QuestionTags: model.QuestionTags{Topic: "Travel", GrammarTag: "tense"}},
		{QuestionTags: model.QuestionTags{Topic: "travel", VocabularyTag: "airport"}},
	})
	assert.Equal(t, []string{"travel", "tense"}, p.WeakTags(2))
	assert.Zero(t, NewErrorProfile(nil).Score([]model.QuestionTags{{Topic: "travel"}}))
}
