package order

import (
	"fmt"

	"github.com/nao1215/ordermesh/pkg/apperror"
)

// Policy はステータス変更とキャンセル・削除の可否を判定する。
type Policy struct {
	// Strict が真なら管理者にも遷移グラフを強制する。
	Strict bool
}

// adminTransitions は厳格モードで管理者に許される遷移。
var adminTransitions = map[Status][]Status{
	StatusCreated:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CheckStatusChange は注文のステータスをnextに変更できるかを判定する。
// 所有者・可視性の判定は呼び出し元で済んでいること。
func (p Policy) CheckStatusChange(requester Requester, current, next Status) error {
	if !requester.Admin {
		if next != StatusCancelled {
			return apperror.Forbidden("Only admins can set non-cancelled statuses")
		}
		if current.Terminal() {
			return apperror.BadRequest(apperror.CodeInvalidStatusChange,
				fmt.Sprintf("Cannot change status of a %s order", current))
		}
		return nil
	}

	if !p.Strict || current == next {
		return nil
	}
	for _, allowed := range adminTransitions[current] {
		if allowed == next {
			return nil
		}
	}
	return apperror.BadRequest(apperror.CodeInvalidStatusChange,
		fmt.Sprintf("Cannot change status from %s to %s", current, next))
}

// CheckDelete は注文を削除できるかを判定する。
// 一般ユーザーはcreatedかcancelledの注文のみ削除できる。
func (p Policy) CheckDelete(requester Requester, current Status) error {
	if requester.Admin {
		return nil
	}
	if current != StatusCreated && current != StatusCancelled {
		return apperror.BadRequest(apperror.CodeInvalidDeletion,
			fmt.Sprintf("Cannot delete a %s order", current))
	}
	return nil
}
