/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package sodispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/stackmcp/sodispatch/accessmode"
	"github.com/stackmcp/sodispatch/dispatch"
	"github.com/stackmcp/sodispatch/stackexchange"
)

// apiExecutor maps logical dispatch requests onto Stack Exchange API calls.
type apiExecutor struct {
	api *stackexchange.Client
}

func newAPIExecutor(api *stackexchange.Client) *apiExecutor {
	return &apiExecutor{api: api}
}

// Execute implements dispatch.Executor.
func (e *apiExecutor) Execute(
	ctx context.Context, req dispatch.Request, mode accessmode.Mode,
) (json.RawMessage, *accessmode.QuotaInfo, error) {
	res, err := e.call(ctx, req, mode)
	var quota *accessmode.QuotaInfo
	if res != nil {
		q := res.Quota
		quota = &q
	}
	if err != nil {
		return nil, quota, err
	}
	return res.Items, quota, nil
}

func (e *apiExecutor) call(
	ctx context.Context, req dispatch.Request, mode accessmode.Mode,
) (*stackexchange.Result, error) {
	opts := callOptsFromParams(req.Params)
	switch req.Op {
	case dispatch.OpSearchQuestions:
		return e.api.SearchAdvanced(ctx, req.Params[paramQuery], opts, mode)

	case dispatch.OpSearchByTags:
		return e.api.QuestionsByTags(ctx, strings.Split(req.Params[paramTagged], ";"), opts, mode)

	case dispatch.OpGetQuestion:
		id, err := questionIDFromParams(req.Params)
		if err != nil {
			return nil, err
		}
		return e.api.Question(ctx, id, mode)

	case dispatch.OpGetQuestionAnswers:
		id, err := questionIDFromParams(req.Params)
		if err != nil {
			return nil, err
		}
		return e.api.QuestionAnswers(ctx, id, opts, mode)
	}
	return nil, &dispatch.ValidationError{Message: fmt.Sprintf("unknown operation kind %q", req.Op)}
}

func callOptsFromParams(params map[string]string) stackexchange.CallOpts {
	var opts stackexchange.CallOpts
	if v, err := strconv.Atoi(params[paramPage]); err == nil {
		opts.Page = v
	}
	if v, err := strconv.Atoi(params[paramPageSize]); err == nil {
		opts.PageSize = v
	}
	opts.Sort = params[paramSort]
	return opts
}

func questionIDFromParams(params map[string]string) (int64, error) {
	id, err := strconv.ParseInt(params[paramQuestionID], 10, 64)
	if err != nil || id <= 0 {
		return 0, &dispatch.ValidationError{Message: fmt.Sprintf("invalid question id %q", params[paramQuestionID])}
	}
	return id, nil
}
