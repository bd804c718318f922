package app

import "quiz-live-service/internal/domain"

// actionCloseQuestion is armed by the open-question timer. It is not accepted
// from callers; ParseAction never produces it.
const actionCloseQuestion domain.Action = "CLOSE_QUESTION"

type trigger string

const (
	triggerManual    trigger = "manual"
	triggerTimer     trigger = "timer"
	triggerAutoStart trigger = "autostart"
)

type transition struct {
	from []domain.State
	to   domain.State
}

var transitions = map[domain.Action]transition{
	domain.ActionNextQuestion: {
		from: []domain.State{domain.StateLobby, domain.StateQuestionClose, domain.StateAnswerShow},
		to:   domain.StateQuestionCountdown,
	},
	domain.ActionSkipCountdown: {
		from: []domain.State{domain.StateQuestionCountdown},
		to:   domain.StateQuestionOpen,
	},
	actionCloseQuestion: {
		from: []domain.State{domain.StateQuestionOpen},
		to:   domain.StateQuestionClose,
	},
	domain.ActionGoToAnswer: {
		from: []domain.State{domain.StateQuestionOpen, domain.StateQuestionClose},
		to:   domain.StateAnswerShow,
	},
	domain.ActionGoToFinalResults: {
		from: []domain.State{domain.StateQuestionClose, domain.StateAnswerShow},
		to:   domain.StateFinalResults,
	},
	domain.ActionEnd: {
		from: []domain.State{
			domain.StateLobby,
			domain.StateQuestionCountdown,
			domain.StateQuestionOpen,
			domain.StateQuestionClose,
			domain.StateAnswerShow,
			domain.StateFinalResults,
		},
		to: domain.StateEnd,
	},
}

// transitionFor returns the edge taken by action from state.
func transitionFor(state domain.State, action domain.Action) (transition, *domain.Error) {
	tr, ok := transitions[action]
	if !ok {
		return transition{}, domain.ErrInvalidAction
	}
	for _, from := range tr.from {
		if from == state {
			return tr, nil
		}
	}
	return transition{}, domain.ErrInvalidStateForAction
}
