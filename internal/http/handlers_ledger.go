package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"fintrack/internal/identity"
	"fintrack/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.ListTransactions(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Body(mapSlice(txs, newTransactionResponse)).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.GetTransaction(r.Context(), identity.UserIDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(newTransactionResponse(t)).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	in, err := ParseTransactionBody(r)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	t, err := s.ledger.CreateTransaction(r.Context(), identity.UserIDFromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+t.ID).
		Body(newTransactionResponse(t)).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	in, err := ParseTransactionBody(r)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	t, err := s.ledger.UpdateTransaction(r.Context(), identity.UserIDFromContext(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(newTransactionResponse(t)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTransaction(r.Context(), identity.UserIDFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListIncomeStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := s.ledger.ListIncomeStreams(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Body(mapSlice(streams, newIncomeStreamResponse)).Write(w)
}

func (s *Server) handleGetIncomeStream(w http.ResponseWriter, r *http.Request) {
	is, err := s.ledger.GetIncomeStream(r.Context(), identity.UserIDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(newIncomeStreamResponse(is)).Write(w)
}

func (s *Server) handleCreateIncomeStream(w http.ResponseWriter, r *http.Request) {
	in, err := ParseIncomeStreamBody(r)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	is, err := s.ledger.CreateIncomeStream(r.Context(), identity.UserIDFromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/income-streams/"+is.ID).
		Body(newIncomeStreamResponse(is)).
		Write(w)
}

func (s *Server) handleUpdateIncomeStream(w http.ResponseWriter, r *http.Request) {
	in, err := ParseIncomeStreamBody(r)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	is, err := s.ledger.UpdateIncomeStream(r.Context(), identity.UserIDFromContext(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(newIncomeStreamResponse(is)).Write(w)
}

func (s *Server) handleDeleteIncomeStream(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteIncomeStream(r.Context(), identity.UserIDFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
