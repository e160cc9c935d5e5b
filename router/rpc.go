package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/wamp"
)

// InvocationHandler serves calls to a registered procedure. It runs on the
// router's runtime; long-running work should happen elsewhere and complete
// the returned future when done. ctx is canceled when the caller goes away or
// the call times out.
type InvocationHandler func(ctx context.Context, inv *wamp.Invocation) *future.Future[*wamp.Result]

// Sync adapts a synchronous function to an InvocationHandler.
func Sync(fn func(ctx context.Context, inv *wamp.Invocation) (*wamp.Result, error)) InvocationHandler {
	return func(ctx context.Context, inv *wamp.Invocation) *future.Future[*wamp.Result] {
		res, err := fn(ctx, inv)
		if err != nil {
			return future.Rejected[*wamp.Result](nil, err)
		}
		return future.Resolved[*wamp.Result](nil, res)
	}
}

// register runs on the runtime.
func (r *Router) register(s *Session, procedure wamp.URI, handler InvocationHandler) (*registration, error) {
	if err := r.validate(procedure); err != nil {
		return nil, err
	}
	if procedure.Reserved() {
		return nil, fmt.Errorf("%w: cannot register reserved procedure %s", ErrNotAuthorized, procedure)
	}

	r.mu.Lock()
	if existing, ok := r.registrations[procedure]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is registered by session %d", ErrProcedureAlreadyExists, procedure, existing.callee.ID())
	}
	reg := &registration{
		id:        r.nextID(),
		procedure: procedure,
		created:   time.Now(),
		callee:    s,
		handler:   handler,
	}
	r.registrations[procedure] = reg
	r.regsByID[reg.id] = reg
	s.routerRegs[reg.id] = reg
	r.mu.Unlock()

	r.observe(wamp.MetaEvent{Kind: wamp.MetaKindRegistrationCreate, Session: s.ID(), URI: procedure, Ref: reg.id})
	r.publishMeta(wamp.MetaRegistrationOnCreate, wamp.List{uint64(s.ID()), reg.details()})
	r.publishMeta(wamp.MetaRegistrationOnRegister, wamp.List{uint64(s.ID()), uint64(reg.id)})
	return reg, nil
}

// unregister runs on the runtime. Calls already in flight keep running.
func (r *Router) unregister(s *Session, regID wamp.ID) error {
	r.mu.Lock()
	reg, ok := s.routerRegs[regID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoSuchRegistration, regID)
	}
	delete(s.routerRegs, regID)
	delete(r.registrations, reg.procedure)
	delete(r.regsByID, regID)
	r.mu.Unlock()

	r.observe(wamp.MetaEvent{Kind: wamp.MetaKindRegistrationDelete, Session: s.ID(), URI: reg.procedure, Ref: regID})
	r.publishMeta(wamp.MetaRegistrationOnUnregister, wamp.List{uint64(s.ID()), uint64(regID)})
	r.publishMeta(wamp.MetaRegistrationOnDelete, wamp.List{uint64(s.ID()), uint64(regID)})
	return nil
}

// call runs on the runtime. complete is invoked exactly once, possibly later
// from another runtime task.
func (r *Router) call(caller *Session, procedure wamp.URI, args wamp.List, kwargs wamp.Dict, opts callOptions, complete func(*wamp.Result, error)) {
	if err := r.validate(procedure); err != nil {
		complete(nil, err)
		return
	}
	if procedure.Reserved() {
		res, err := r.metaCall(procedure, args)
		outcome := wamp.CallOutcomeResult
		switch {
		case errors.Is(err, ErrNoSuchProcedure):
			outcome = wamp.CallOutcomeNoSuchProcedure
		case err != nil:
			outcome = wamp.CallOutcomeError
		}
		r.observe(wamp.MetaEvent{Kind: wamp.MetaKindCall, Session: caller.ID(), URI: procedure, Outcome: outcome})
		complete(res, err)
		return
	}

	r.mu.Lock()
	reg, ok := r.registrations[procedure]
	if !ok {
		r.mu.Unlock()
		r.observe(wamp.MetaEvent{Kind: wamp.MetaKindCall, Session: caller.ID(), URI: procedure, Outcome: wamp.CallOutcomeNoSuchProcedure})
		complete(nil, fmt.Errorf("%w: %s", ErrNoSuchProcedure, procedure))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	inv := &invocation{
		id:       r.nextID(),
		reg:      reg,
		caller:   caller,
		cancel:   cancel,
		complete: complete,
	}
	r.invocations[inv.id] = inv
	r.mu.Unlock()

	if opts.timeout > 0 {
		reqID := inv.id
		inv.timer = time.AfterFunc(opts.timeout, func() {
			_ = r.rt.Submit(func() {
				r.finishCall(reqID, nil, fmt.Errorf("%w: %s timed out after %s", ErrCanceled, procedure, opts.timeout), wamp.CallOutcomeCanceled)
			})
		})
	}

	msg := &wamp.Invocation{
		Request:      inv.id,
		Registration: reg.id,
		Args:         args,
		Kwargs:       kwargs,
		Details:      wamp.InvocationDetails{Procedure: procedure},
	}
	if opts.discloseCaller || r.spec.DiscloseCaller {
		msg.Details.Caller = caller.ID()
	}

	reply := r.invoke(ctx, reg, msg)
	reqID := inv.id
	reply.Then(func(res *wamp.Result) {
		r.submitFinish(reqID, res, nil)
	}, func(err error) {
		r.submitFinish(reqID, nil, err)
	})
}

func (r *Router) invoke(ctx context.Context, reg *registration, msg *wamp.Invocation) (reply *future.Future[*wamp.Result]) {
	defer func() {
		if p := recover(); p != nil {
			r.log.ErrorContext(reg.callee.logContext(), "call.handler_panic",
				slog.String("procedure", string(reg.procedure)),
				slog.Any("panic", p),
			)
			reply = future.Rejected[*wamp.Result](nil, wamp.NewError(wamp.ErrorRuntimeError, "procedure %s panicked", reg.procedure))
		}
	}()
	reply = reg.handler(ctx, msg)
	if reply == nil {
		reply = future.Rejected[*wamp.Result](nil, wamp.NewError(wamp.ErrorRuntimeError, "procedure %s returned no result", reg.procedure))
	}
	return reply
}

// submitFinish hops back onto the runtime since the callee may complete its
// future from any goroutine.
func (r *Router) submitFinish(reqID wamp.ID, res *wamp.Result, err error) {
	outcome := wamp.CallOutcomeResult
	if err != nil {
		outcome = wamp.CallOutcomeError
	}
	if serr := r.rt.Submit(func() { r.finishCall(reqID, res, err, outcome) }); serr != nil {
		r.log.Warn("call.result_dropped", slog.Uint64("request", uint64(reqID)), slog.String("err", serr.Error()))
	}
}

// finishCall runs on the runtime; only the first completion for reqID wins.
func (r *Router) finishCall(reqID wamp.ID, res *wamp.Result, err error, outcome string) {
	r.mu.Lock()
	inv, ok := r.invocations[reqID]
	if ok {
		delete(r.invocations, reqID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	inv.stop()
	if err == nil && res == nil {
		res = &wamp.Result{}
	}
	r.observe(wamp.MetaEvent{Kind: wamp.MetaKindCall, Session: callerID(inv), URI: inv.reg.procedure, Ref: reqID, Outcome: outcome})
	inv.complete(res, err)
}

func (reg *registration) details() wamp.Dict {
	return wamp.Dict{
		"id":      uint64(reg.id),
		"uri":     string(reg.procedure),
		"match":   "exact",
		"invoke":  "single",
		"created": reg.created.UTC().Format(time.RFC3339Nano),
	}
}
