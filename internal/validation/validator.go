// Package validation configures the request validator shared by gin binding
// and by code that validates contracts directly.
package validation

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"Poolfund/internal/contracts"
	"Poolfund/internal/pkg"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Validator implements gin's binding.StructValidator.
type Validator struct {
	once     sync.Once
	validate *validator.Validate
	now      func() time.Time
}

var _ binding.StructValidator = (*Validator)(nil)

func New() *Validator {
	v := &Validator{now: time.Now}
	v.lazyinit()
	return v
}

// Install makes v the validator behind c.ShouldBind*.
func Install(v *Validator) {
	binding.Validator = v
}

func (v *Validator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}

	value := reflect.ValueOf(obj)
	switch value.Kind() {
	case reflect.Ptr:
		if value.IsNil() {
			return nil
		}
		return v.ValidateStruct(value.Elem().Interface())
	case reflect.Struct:
		v.lazyinit()
		return v.validate.Struct(obj)
	case reflect.Slice, reflect.Array:
		for i := 0; i < value.Len(); i++ {
			if err := v.ValidateStruct(value.Index(i).Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Validator) Engine() any {
	v.lazyinit()
	return v.validate
}

func (v *Validator) lazyinit() {
	v.once.Do(func() {
		if v.now == nil {
			v.now = time.Now
		}

		validate := validator.New(validator.WithRequiredStructEnabled())
		validate.SetTagName("binding")
		validate.RegisterTagNameFunc(jsonFieldName)
		validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

		_ = validate.RegisterValidation("accepted", accepted)
		_ = validate.RegisterValidation("future", v.future)

		validate.RegisterStructValidation(createPoolRules, contracts.CreatePoolRequest{})
		validate.RegisterStructValidation(updatePoolRules, contracts.UpdatePoolRequest{})
		validate.RegisterStructValidation(createDistributionRules, contracts.CreateDistributionRequest{})
		validate.RegisterStructValidation(listPoolsRules, contracts.ListPoolsQuery{})

		v.validate = validate
	})
}

// jsonFieldName reports fields by their wire name so error details match the request body.
func jsonFieldName(field reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return field.Name
}

// decimalValue lets numeric tags such as gt=0 apply to money fields.
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

func accepted(fl validator.FieldLevel) bool {
	return fl.Field().Kind() == reflect.Bool && fl.Field().Bool()
}

func (v *Validator) future(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return t.After(v.now())
}

func createPoolRules(sl validator.StructLevel) {
	req := sl.Current().Interface().(contracts.CreatePoolRequest)
	checkCents(sl, req.TargetAmount, "targetAmount", "TargetAmount")
	checkCents(sl, req.MinInvestment, "minInvestment", "MinInvestment")
	checkCentsPtr(sl, req.MaxInvestment, "maxInvestment", "MaxInvestment")
	checkCents(sl, req.SharePrice, "sharePrice", "SharePrice")
	if req.MaxInvestment != nil && req.MaxInvestment.LessThan(req.MinInvestment) {
		sl.ReportError(req.MaxInvestment, "maxInvestment", "MaxInvestment", "gtefield", "minInvestment")
	}
}

func updatePoolRules(sl validator.StructLevel) {
	req := sl.Current().Interface().(contracts.UpdatePoolRequest)
	checkCentsPtr(sl, req.TargetAmount, "targetAmount", "TargetAmount")
	checkCentsPtr(sl, req.MinInvestment, "minInvestment", "MinInvestment")
	checkCentsPtr(sl, req.MaxInvestment, "maxInvestment", "MaxInvestment")
	checkCentsPtr(sl, req.SharePrice, "sharePrice", "SharePrice")
	if req.MaxInvestment != nil && req.MinInvestment != nil && req.MaxInvestment.LessThan(*req.MinInvestment) {
		sl.ReportError(req.MaxInvestment, "maxInvestment", "MaxInvestment", "gtefield", "minInvestment")
	}
}

func createDistributionRules(sl validator.StructLevel) {
	req := sl.Current().Interface().(contracts.CreateDistributionRequest)
	checkCents(sl, req.GrossAmount, "grossAmount", "GrossAmount")
	checkCents(sl, req.Fees, "fees", "Fees")
	checkCents(sl, req.Taxes, "taxes", "Taxes")
	if req.Fees.Add(req.Taxes).GreaterThan(req.GrossAmount) {
		sl.ReportError(req.Fees, "fees", "Fees", "feescap", "grossAmount")
	}
}

// checkCents rejects money with sub-cent digits, which storage would round away.
func checkCents(sl validator.StructLevel, d decimal.Decimal, field, structField string) {
	if !pkg.IsWholeCents(d) {
		sl.ReportError(d, field, structField, "cents", "2")
	}
}

func checkCentsPtr(sl validator.StructLevel, d *decimal.Decimal, field, structField string) {
	if d != nil {
		checkCents(sl, *d, field, structField)
	}
}

func listPoolsRules(sl validator.StructLevel) {
	q := sl.Current().Interface().(contracts.ListPoolsQuery)
	if q.MinInvestment == "" || q.MaxInvestment == "" {
		return
	}
	lo, errLo := decimal.NewFromString(q.MinInvestment)
	hi, errHi := decimal.NewFromString(q.MaxInvestment)
	if errLo == nil && errHi == nil && hi.LessThan(lo) {
		sl.ReportError(q.MaxInvestment, "maxInvestment", "MaxInvestment", "gtefield", "minInvestment")
	}
}
