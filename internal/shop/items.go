// Package shop defines the static besitos catalog.
package shop

// Item is one purchasable catalog entry.
type Item struct {
	ID          string
	Name        string
	Description string
	Price       int64
}

// items is the catalog, in display order.
var items = []Item{
	{ID: "piropo", Name: "Piropo personalizado", Description: "El bot te dedica un piropo en el grupo", Price: 25},
	{ID: "apodo", Name: "Cambio de apodo", Description: "Cambia tu apodo mostrado durante una semana", Price: 50},
	{ID: "destacado", Name: "Mensaje destacado", Description: "Tu mensaje se fija en el grupo por un día", Price: 100},
	{ID: "regalo", Name: "Regalo sorpresa", Description: "Un regalo al azar para otro miembro", Price: 150},
}

// GetAll returns the catalog in display order.
func GetAll() []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Get returns the item with the given ID.
func Get(id string) (Item, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
