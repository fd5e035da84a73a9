// Package health はliveness/readinessプローブと依存先のヘルスチェックを提供する。
package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout はreadinessチェック全体の既定タイムアウト。
const DefaultTimeout = 5 * time.Second

// Status はコンポーネントの状態。
type Status string

const (
	// StatusUp は正常。
	StatusUp Status = "up"
	// StatusDown は異常。
	StatusDown Status = "down"
)

// Result は単一チェックの結果。
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Checker はヘルスチェックの実装が満たすインターフェース。
type Checker interface {
	// Name はチェック対象の名前を返す。
	Name() string
	// Check はチェックを実行する。
	Check(ctx context.Context) Result
}

// CheckResult は名前付きのチェック結果。
type CheckResult struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Report はreadinessの集約結果。
type Report struct {
	Status Status        `json:"status"`
	Checks []CheckResult `json:"checks,omitempty"`
}

// Registry は複数のCheckerを保持する。
type Registry struct {
	checkers []Checker
}

// NewRegistry は新しいRegistryを生成する。
func NewRegistry(checkers ...Checker) *Registry {
	return &Registry{checkers: checkers}
}

// Add はCheckerを追加する。起動時にのみ呼ぶこと。
func (r *Registry) Add(c Checker) {
	r.checkers = append(r.checkers, c)
}

// CheckAll はすべてのチェックを並行に実行する。1つでもdownなら全体もdown。
func (r *Registry) CheckAll(ctx context.Context) Report {
	if len(r.checkers) == 0 {
		return Report{Status: StatusUp}
	}

	results := make([]CheckResult, len(r.checkers))
	var g errgroup.Group
	for i, checker := range r.checkers {
		g.Go(func() error {
			res := checker.Check(ctx)
			results[i] = CheckResult{Name: checker.Name(), Status: res.Status, Message: res.Message}
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusUp
	for _, res := range results {
		if res.Status == StatusDown {
			overall = StatusDown
			break
		}
	}
	return Report{Status: overall, Checks: results}
}
