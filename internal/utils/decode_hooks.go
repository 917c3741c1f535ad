package utils

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

const (
	integerListSeparatorConstant        = ","
	integerListElementErrorTemplate     = "invalid integer %q in list %q: %w"
	integerListEmptyElementErrorMessage = "empty element in integer list"
	fractionalIntegerErrorTemplate      = "value %v is not a whole number"
)

var (
	integerSliceType         = reflect.TypeOf([]int{})
	integerType              = reflect.TypeOf(0)
	errIntegerListEmptyValue = errors.New(integerListEmptyElementErrorMessage)
)

// CommaSeparatedIntegersHook decodes strings such as "10, 20,30" into []int.
// Environment variables and .env files only carry strings, while YAML and JSON
// files carry native lists; both shapes decode into the same field.
func CommaSeparatedIntegersHook() mapstructure.DecodeHookFuncType {
	return func(sourceType reflect.Type, targetType reflect.Type, data any) (any, error) {
		if targetType != integerSliceType {
			return data, nil
		}

		switch sourceType.Kind() {
		case reflect.String:
			return ParseIntegerList(reflect.ValueOf(data).String())
		case reflect.Int, reflect.Int64:
			return []int{reflect.ValueOf(data).Convert(integerType).Interface().(int)}, nil
		case reflect.Float32, reflect.Float64:
			wholeValue, wholeValueError := wholeNumber(reflect.ValueOf(data).Float())
			if wholeValueError != nil {
				return nil, wholeValueError
			}
			return []int{wholeValue}, nil
		case reflect.Slice:
			sliceValue := reflect.ValueOf(data)
			for elementIndex := 0; elementIndex < sliceValue.Len(); elementIndex++ {
				elementValue := reflect.Indirect(reflect.ValueOf(sliceValue.Index(elementIndex).Interface()))
				if !elementValue.IsValid() {
					continue
				}
				if elementKind := elementValue.Kind(); elementKind == reflect.Float32 || elementKind == reflect.Float64 {
					if _, wholeValueError := wholeNumber(elementValue.Float()); wholeValueError != nil {
						return nil, wholeValueError
					}
				}
			}
			return data, nil
		default:
			return data, nil
		}
	}
}

// wholeNumber rejects fractional values instead of truncating them.
func wholeNumber(floatValue float64) (int, error) {
	if floatValue != math.Trunc(floatValue) {
		return 0, fmt.Errorf(fractionalIntegerErrorTemplate, floatValue)
	}
	return int(floatValue), nil
}

// ParseIntegerList splits a comma-separated list of integers preserving order.
// An empty or blank value yields an empty list.
func ParseIntegerList(rawValue string) ([]int, error) {
	trimmedValue := strings.TrimSpace(rawValue)
	if len(trimmedValue) == 0 {
		return []int{}, nil
	}

	elements := strings.Split(trimmedValue, integerListSeparatorConstant)
	parsedValues := make([]int, 0, len(elements))
	for _, element := range elements {
		trimmedElement := strings.TrimSpace(element)
		if len(trimmedElement) == 0 {
			return nil, fmt.Errorf(integerListElementErrorTemplate, element, rawValue, errIntegerListEmptyValue)
		}
		parsedValue, parseError := strconv.Atoi(trimmedElement)
		if parseError != nil {
			return nil, fmt.Errorf(integerListElementErrorTemplate, trimmedElement, rawValue, parseError)
		}
		parsedValues = append(parsedValues, parsedValue)
	}

	return parsedValues, nil
}
