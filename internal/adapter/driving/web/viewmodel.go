package web

import (
	"strconv"

	vm "github.com/ericfisherdev/storepanel/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/storepanel/internal/application"
	"github.com/ericfisherdev/storepanel/internal/domain/model"
)

const dateLayout = "2006-01-02"

// formatPrice renders an amount with two decimals and a dollar sign.
func formatPrice(amount float64) string {
	return "$" + strconv.FormatFloat(amount, 'f', 2, 64)
}

func toHeaderViewModel(sess application.Session, csrf string) vm.HeaderViewModel {
	header := vm.HeaderViewModel{CSRFToken: csrf}
	if !sess.Authenticated() {
		return header
	}
	header.Authenticated = true
	header.Name = sess.Identity.Name
	header.ShowAdmin = application.Authorize(sess.Identity, application.RequireRole(model.RoleAdmin)) == application.Allowed
	return header
}

func toProductCardViewModel(p model.Product) vm.ProductCardViewModel {
	return vm.ProductCardViewModel{
		ID:              p.ID,
		Name:            p.Name,
		Price:           formatPrice(p.Price),
		Image:           p.Image,
		DescriptionHTML: RenderMarkdown(p.Description),
	}
}

func toProductCardViewModels(products []model.Product) []vm.ProductCardViewModel {
	out := make([]vm.ProductCardViewModel, 0, len(products))
	for _, p := range products {
		out = append(out, toProductCardViewModel(p))
	}
	return out
}

func toOrderRowViewModels(orders []model.Order) []vm.OrderRowViewModel {
	out := make([]vm.OrderRowViewModel, 0, len(orders))
	for _, o := range orders {
		date := ""
		if !o.Date.IsZero() {
			date = o.Date.Format(dateLayout)
		}
		out = append(out, vm.OrderRowViewModel{
			ID:     o.ID,
			Date:   date,
			Total:  formatPrice(o.Total),
			Status: o.Status,
		})
	}
	return out
}

func toAccountViewModel(data application.CustomerData) vm.AccountViewModel {
	return vm.AccountViewModel{
		Name:      data.Identity.Name,
		Email:     data.Identity.Email,
		Role:      data.Identity.Role.String(),
		Favorites: toProductCardViewModels(data.Favorites),
		Orders:    toOrderRowViewModels(data.Orders),
	}
}

func toUserRowViewModel(u model.Identity) vm.UserRowViewModel {
	options := make([]vm.RoleOption, 0, len(model.Roles))
	for _, role := range model.Roles {
		options = append(options, vm.RoleOption{Value: role.String(), Selected: role == u.Role})
	}
	return vm.UserRowViewModel{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role.String(),
		RoleOptions: options,
	}
}

func toAdminViewModel(data application.AdminData, tab, csrf string) vm.AdminViewModel {
	users := make([]vm.UserRowViewModel, 0, len(data.Users))
	for _, u := range data.Users {
		users = append(users, toUserRowViewModel(u))
	}

	products := make([]vm.ProductEditViewModel, 0, len(data.Products))
	for _, p := range data.Products {
		products = append(products, vm.ProductEditViewModel{
			ID:          p.ID,
			Name:        p.Name,
			Price:       strconv.FormatFloat(p.Price, 'f', 2, 64),
			Description: p.Description,
		})
	}

	if tab != "products" {
		tab = "users"
	}
	return vm.AdminViewModel{
		Tab:       tab,
		Users:     users,
		Products:  products,
		CSRFToken: csrf,
	}
}
