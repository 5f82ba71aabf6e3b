package service

import (
	"math"
	"math/rand"
	"sort"
	"strings"

	"toeic_backend/internal/model"
)

// 难度分层相对能力值 theta 的偏移
const (
	bandNear = 0.3
	bandFar  = 1.5
)

// 错误模式各维度权重
const (
	weightTopic      = 3
	weightCategory   = 2
	weightGrammar    = 2
	weightVocabulary = 1
)

const (
	BucketMissed      = "missed"
	BucketEasy        = "easy"
	BucketBalanced    = "balanced"
	BucketChallenging = "challenging"
	BucketFallback    = "fallback"
)

// PracticeUnit 选题的最小单位：独立题，或题组（父题+全部小题）
type PracticeUnit struct {
	ID          uint
	QuestionIDs []uint
	// 计入题量的小题数
	Answerable int
	// 独立题取自身难度，题组取已校准小题的平均难度；未校准为空
	Difficulty *float64
	Tags       []model.QuestionTags
}

func (u PracticeUnit) Size() int {
	return u.Answerable
}

// BuildUnits 将某部分的题目组装为作答单元，顺序与输入一致
func BuildUnits(questions []model.Question) []PracticeUnit {
	children := make(map[uint][]*model.Question)
	for i := range questions {
		q := &questions[i]
		if q.ParentID != nil {
			children[*q.ParentID] = append(children[*q.ParentID], q)
		}
	}

	units := make([]PracticeUnit, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		if q.ParentID != nil {
			continue
		}
		if !q.IsGroup {
			units = append(units, PracticeUnit{
				ID:          q.ID,
				QuestionIDs: []uint{q.ID},
				Answerable:  1,
				Difficulty:  q.Difficulty,
				Tags:        []model.QuestionTags{q.Tags()},
			})
			continue
		}

		kids := children[q.ID]
		if len(kids) == 0 {
			continue
		}
		unit := PracticeUnit{
			ID:          q.ID,
			QuestionIDs: []uint{q.ID},
			Answerable:  len(kids),
		}
		var sum float64
		calibrated := 0
		for _, k := range kids {
			unit.QuestionIDs = append(unit.QuestionIDs, k.ID)
			unit.Tags = append(unit.Tags, k.Tags())
			if k.Difficulty != nil {
				sum += *k.Difficulty
				calibrated++
			}
		}
		if calibrated > 0 {
			mean := sum / float64(calibrated)
			unit.Difficulty = &mean
		}
		units = append(units, unit)
	}
	return units
}

// ErrorProfile 最近错题中各标签的出现次数
type ErrorProfile struct {
	Topics     map[string]int
	Categories map[string]int
	Grammar    map[string]int
	Vocabulary map[string]int
}

func normTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func NewErrorProfile(errs []model.UserError) ErrorProfile {
	p := ErrorProfile{
		Topics:     make(map[string]int),
		Categories: make(map[string]int),
		Grammar:    make(map[string]int),
		Vocabulary: make(map[string]int),
	}
	inc := func(m map[string]int, tag string) {
		if t := normTag(tag); t != "" {
			m[t]++
		}
	}
	for _, e := range errs {
		inc(p.Topics, e.Topic)
		inc(p.Categories, e.Category)
		inc(p.Grammar, e.GrammarTag)
		inc(p.Vocabulary, e.VocabularyTag)
	}
	return p
}

func (p ErrorProfile) Empty() bool {
	return len(p.Topics)+len(p.Categories)+len(p.Grammar)+len(p.Vocabulary) == 0
}

// Score 单元与错误模式的重合度；题组取各小题得分的均值
func (p ErrorProfile) Score(tags []model.QuestionTags) float64 {
	if len(tags) == 0 || p.Empty() {
		return 0
	}
	var total float64
	for _, t := range tags {
		total += float64(weightTopic*p.Topics[normTag(t.Topic)] +
			weightCategory*p.Categories[normTag(t.Category)] +
			weightGrammar*p.Grammar[normTag(t.GrammarTag)] +
			weightVocabulary*p.Vocabulary[normTag(t.VocabularyTag)])
	}
	return total / float64(len(tags))
}

// WeakTags 按加权次数排序的前 n 个薄弱标签
func (p ErrorProfile) WeakTags(n int) []string {
	type kv struct {
		tag   string
		score int
	}
	var all []kv
	add := func(m map[string]int, weight int) {
		for t, c := range m {
			all = append(all, kv{t, c * weight})
		}
	}
	add(p.Topics, weightTopic)
	add(p.Categories, weightCategory)
	add(p.Grammar, weightGrammar)
	add(p.Vocabulary, weightVocabulary)
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].tag < all[j].tag
	})

	seen := make(map[string]bool)
	tags := make([]string, 0, n)
	for _, e := range all {
		if len(tags) >= n {
			break
		}
		if !seen[e.tag] {
			seen[e.tag] = true
			tags = append(tags, e.tag)
		}
	}
	return tags
}

// Quotas 各分组的目标题量
type Quotas struct {
	Missed      int `json:"missed"`
	Easy        int `json:"easy"`
	Balanced    int `json:"balanced"`
	Challenging int `json:"challenging"`
}

// ComputeQuotas 按 20/20/40/20 的比例用最大余数法分配 n 道题；
// 余数相同时依次优先 balanced、easy、challenging、missed
func ComputeQuotas(n int) Quotas {
	if n <= 0 {
		return Quotas{}
	}
	percents := [4]int{40, 20, 20, 20} // balanced, easy, challenging, missed
	var counts, remainders [4]int
	assigned := 0
	for i, p := range percents {
		counts[i] = n * p / 100
		remainders[i] = n * p % 100
		assigned += counts[i]
	}
	order := []int{0, 1, 2, 3}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for i := 0; assigned < n; i++ {
		counts[order[i%4]]++
		assigned++
	}
	return Quotas{
		Balanced:    counts[0],
		Easy:        counts[1],
		Challenging: counts[2],
		Missed:      counts[3],
	}
}

// SelectorInput 选题所需的全部输入，选题本身不访问数据库
type SelectorInput struct {
	Units   []PracticeUnit
	Ability float64
	Count   int
	// 未解决错题的题目 ID，最近的在前
	MissedIDs []uint
	// 最近作答过的题目 ID
	Recent  map[uint]bool
	Profile ErrorProfile
	Rand    *rand.Rand
}

type SelectedUnit struct {
	Unit   PracticeUnit `json:"-"`
	Bucket string       `json:"bucket"`
}

type Selection struct {
	Quotas Quotas
	Units  []SelectedUnit
	// 各分组实际计入的小题数
	Filled map[string]int
}

// QuestionIDs 按选题顺序展开的题目 ID（题组父题在其小题之前）
func (s *Selection) QuestionIDs() []uint {
	var ids []uint
	for _, u := range s.Units {
		ids = append(ids, u.Unit.QuestionIDs...)
	}
	return ids
}

func (s *Selection) Total() int {
	total := 0
	for _, n := range s.Filled {
		total += n
	}
	return total
}

type selector struct {
	in       SelectorInput
	selected map[uint]bool
	out      *Selection
}

func (s *selector) take(u PracticeUnit, bucket string) {
	s.selected[u.ID] = true
	s.out.Units = append(s.out.Units, SelectedUnit{Unit: u, Bucket: bucket})
	s.out.Filled[bucket] += u.Size()
}

// fits 单元整体计入后既不超出分组配额，也不超出总题量
func (s *selector) fits(u PracticeUnit, bucket string, quota int) bool {
	return s.out.Filled[bucket]+u.Size() <= quota && s.out.Total()+u.Size() <= s.in.Count
}

func (s *selector) isRecent(u PracticeUnit) bool {
	for _, id := range u.QuestionIDs {
		if s.in.Recent[id] {
			return true
		}
	}
	return false
}

func (s *selector) inBand(b float64, bucket string) bool {
	theta := s.in.Ability
	switch bucket {
	case BucketEasy:
		return b >= theta-bandFar && b < theta-bandNear
	case BucketBalanced:
		return b >= theta-bandNear && b <= theta+bandNear
	case BucketChallenging:
		return b > theta+bandNear && b <= theta+bandFar
	}
	return false
}

func (s *selector) shuffle(units []PracticeUnit) {
	s.in.Rand.Shuffle(len(units), func(i, j int) { units[i], units[j] = units[j], units[i] })
}

// fillMissed 错题所在单元整体入选，最近的错题优先
func (s *selector) fillMissed(quota int) {
	if quota <= 0 {
		return
	}
	owner := make(map[uint]int)
	for i, u := range s.in.Units {
		for _, id := range u.QuestionIDs {
			owner[id] = i
		}
	}
	for _, qid := range s.in.MissedIDs {
		if s.out.Filled[BucketMissed] >= quota {
			return
		}
		i, ok := owner[qid]
		if !ok || s.selected[s.in.Units[i].ID] || !s.fits(s.in.Units[i], BucketMissed, quota) {
			continue
		}
		s.take(s.in.Units[i], BucketMissed)
	}
}

// fillBand 先按错误模式重合度、再按与能力值的距离排序选取，不足时随机补齐
func (s *selector) fillBand(bucket string, quota int) {
	if quota <= 0 {
		return
	}

	type candidate struct {
		unit  PracticeUnit
		score float64
		dist  float64
		tie   float64
	}
	var matches []candidate
	var rest []PracticeUnit
	for _, u := range s.in.Units {
		if u.Difficulty == nil || s.selected[u.ID] || s.isRecent(u) {
			continue
		}
		if !s.inBand(*u.Difficulty, bucket) {
			continue
		}
		score := s.in.Profile.Score(u.Tags)
		if score > 0 {
			matches = append(matches, candidate{
				unit:  u,
				score: score,
				dist:  math.Abs(*u.Difficulty - s.in.Ability),
				tie:   s.in.Rand.Float64(),
			})
		} else {
			rest = append(rest, u)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		return a.tie < b.tie
	})
	for _, c := range matches {
		if s.out.Filled[bucket] >= quota {
			return
		}
		if s.fits(c.unit, bucket, quota) {
			s.take(c.unit, bucket)
		}
	}

	s.shuffle(rest)
	for _, u := range rest {
		if s.out.Filled[bucket] >= quota {
			return
		}
		if s.fits(u, bucket, quota) {
			s.take(u, bucket)
		}
	}
}

// fillFallback 整个部分随机补足题量，先排除最近作答，仍不足再放开；
// 没有能放下的单元时，取最小的一个单元补齐，至多超出一次
func (s *selector) fillFallback() {
	for _, allowRecent := range []bool{false, true} {
		var pool []PracticeUnit
		for _, u := range s.in.Units {
			if s.selected[u.ID] || (!allowRecent && s.isRecent(u)) {
				continue
			}
			pool = append(pool, u)
		}
		s.shuffle(pool)
		for _, u := range pool {
			if s.out.Total() >= s.in.Count {
				return
			}
			if s.out.Total()+u.Size() <= s.in.Count {
				s.take(u, BucketFallback)
			}
		}
	}
	if s.out.Total() >= s.in.Count {
		return
	}

	var smallest *PracticeUnit
	for i := range s.in.Units {
		u := &s.in.Units[i]
		if s.selected[u.ID] {
			continue
		}
		if smallest == nil || u.Size() < smallest.Size() ||
			(u.Size() == smallest.Size() && s.isRecent(*smallest) && !s.isRecent(*u)) {
			smallest = u
		}
	}
	if smallest != nil {
		s.take(*smallest, BucketFallback)
	}
}

// SelectPractice 自适应选题：错题回顾、易、适中、挑战四组按比例抽取，
// 不足部分整体随机补齐。题组作为整体入选，只在补齐阶段可能超出目标题量，
// 且超出不多于最大题组小题数减一
func SelectPractice(in SelectorInput) *Selection {
	if in.Rand == nil {
		in.Rand = rand.New(rand.NewSource(rand.Int63()))
	}
	if in.Recent == nil {
		in.Recent = map[uint]bool{}
	}
	s := &selector{
		in:       in,
		selected: make(map[uint]bool),
		out: &Selection{
			Quotas: ComputeQuotas(in.Count),
			Filled: make(map[string]int),
		},
	}
	if in.Count <= 0 {
		return s.out
	}

	q := s.out.Quotas
	s.fillMissed(q.Missed)
	balanced := q.Balanced
	if short := q.Missed - s.out.Filled[BucketMissed]; short > 0 {
		balanced += short
	}

	s.fillBand(BucketEasy, q.Easy)
	s.fillBand(BucketBalanced, balanced)
	s.fillBand(BucketChallenging, q.Challenging)

	if s.out.Total() < in.Count {
		s.fillFallback()
	}
	return s.out
}
